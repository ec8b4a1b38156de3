package lead

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

// 'pending', 'forwarded', 'no_mapping', 'forward_failed', 'approved', 'rejected'
var (
	StatusPending       Status = "pending"
	StatusForwarded     Status = "forwarded"
	StatusNoMapping     Status = "no_mapping"
	StatusForwardFailed Status = "forward_failed"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusForwarded, StatusNoMapping, StatusForwardFailed, StatusApproved, StatusRejected:
		return string(s)
	default:
		return ""
	}
}

// Terminal reports whether the automatic pipeline is done with the lead.
// Only an operator retry re-enters pending from one of these.
func (s Status) Terminal() bool {
	switch s {
	case StatusNoMapping, StatusForwardFailed, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Lead is one contact submission tracked through its delivery lifecycle.
// Created by the tracking intake; mutated only by the forwarder and the
// callback reconciler.
type Lead struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	TxID               string         `gorm:"column:tx_id;uniqueIndex;not null"`
	AffiliateID        string         `gorm:"column:affiliate_id;index;not null"`
	OfferID            string         `gorm:"column:offer_id;index"`
	AdvertiserID       *string        `gorm:"column:advertiser_id;index"`
	Email              *string        `gorm:"column:email"`
	Phone              *string        `gorm:"column:phone"`
	FirstName          *string        `gorm:"column:first_name"`
	LastName           *string        `gorm:"column:last_name"`
	Country            *string        `gorm:"column:country"`
	Status             Status         `gorm:"column:status;not null;default:'pending'"`
	AdvertiserStatus   *string        `gorm:"column:advertiser_status"`
	Payout             *float64       `gorm:"column:payout"`
	ConvertedAt        *time.Time     `gorm:"column:converted_at"`
	RawPayload         datatypes.JSON `gorm:"column:raw_payload;type:jsonb"`
	AdvertiserResponse datatypes.JSON `gorm:"column:advertiser_response;type:jsonb"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Lead) TableName() string {
	return "leads"
}

// StandardFields returns the canonical contact fields under their canonical
// names, omitting absent values. This is the default safety mapping and the
// fallback source for per-advertiser field rules.
func (l *Lead) StandardFields() map[string]any {
	fields := make(map[string]any)
	if l.Email != nil {
		fields["email"] = *l.Email
	}
	if l.Phone != nil {
		fields["phone"] = *l.Phone
	}
	if l.FirstName != nil {
		fields["first_name"] = *l.FirstName
	}
	if l.LastName != nil {
		fields["last_name"] = *l.LastName
	}
	if l.Country != nil {
		fields["country"] = *l.Country
	}
	return fields
}

// ForwardAttempt is the append-only audit row for one delivery try. Request
// and response are captured in full; this is the only way to debug
// advertiser disputes.
type ForwardAttempt struct {
	ID              string         `gorm:"column:id;primaryKey"`
	LeadID          string         `gorm:"column:lead_id;index;not null"`
	AdvertiserID    string         `gorm:"column:advertiser_id;index"`
	AttemptNo       int            `gorm:"column:attempt_no;not null"`
	URL             string         `gorm:"column:url"`
	RequestHeaders  datatypes.JSON `gorm:"column:request_headers;type:jsonb"`
	RequestBody     datatypes.JSON `gorm:"column:request_body;type:jsonb"`
	StatusCode      *int           `gorm:"column:status_code"`
	ResponseHeaders datatypes.JSON `gorm:"column:response_headers;type:jsonb"`
	ResponseBody    *string        `gorm:"column:response_body"`
	TransportError  *string        `gorm:"column:transport_error"`
	DurationMs      int64          `gorm:"column:duration_ms"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ForwardAttempt) TableName() string {
	return "forward_attempts"
}

// CallbackLog records every inbound advertiser callback, accepted or not.
type CallbackLog struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	LeadID             *string        `gorm:"column:lead_id;index"`
	AdvertiserID       *string        `gorm:"column:advertiser_id;index"`
	TxID               string         `gorm:"column:tx_id;index;not null"`
	Payload            datatypes.JSON `gorm:"column:payload;type:jsonb"`
	Signature          *string        `gorm:"column:signature"`
	SignatureTimestamp *int64         `gorm:"column:signature_timestamp"`
	Accepted           bool           `gorm:"column:accepted"`
	RejectReason       *string        `gorm:"column:reject_reason"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (CallbackLog) TableName() string {
	return "callback_logs"
}
