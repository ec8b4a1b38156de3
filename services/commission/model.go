package commission

import (
	"time"
)

const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

// Commission is a monetary record for a confirmed, payable conversion. The
// composite unique index on (lead_id, advertiser_id) is the structural
// at-most-one-automatic-commission guarantee; concurrent callback deliveries
// race on the index, not on application state.
type Commission struct {
	ID           string    `gorm:"column:id;primaryKey"`
	LeadID       *string   `gorm:"column:lead_id;uniqueIndex:idx_commission_lead_advertiser"`
	AdvertiserID string    `gorm:"column:advertiser_id;uniqueIndex:idx_commission_lead_advertiser;not null"`
	AffiliateID  string    `gorm:"column:affiliate_id;index;not null"`
	Amount       float64   `gorm:"column:amount;not null"`
	Description  string    `gorm:"column:description"`
	Source       string    `gorm:"column:source;not null;default:'auto'"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Commission) TableName() string {
	return "commissions"
}
