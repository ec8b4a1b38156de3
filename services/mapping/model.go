package mapping

import (
	"time"
)

// Advertiser is a buyer endpoint configuration. An empty Secret means the
// integration runs unauthenticated; that is an explicit low-trust mode, not
// a fallback.
type Advertiser struct {
	ID                 string    `gorm:"column:id;primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	ForwardURL         string    `gorm:"column:forward_url;not null"`
	Secret             string    `gorm:"column:secret"`
	SignatureAlgorithm string    `gorm:"column:signature_algorithm;default:'sha256'"`
	Enabled            bool      `gorm:"column:enabled;default:true"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Advertiser) TableName() string {
	return "advertisers"
}

// Mapping routes (affiliate, offer) to an advertiser. ForwardURL, when set,
// overrides the advertiser default endpoint.
type Mapping struct {
	ID           string    `gorm:"column:id;primaryKey"`
	AffiliateID  string    `gorm:"column:affiliate_id;index:idx_mapping_affiliate_offer;not null"`
	OfferID      string    `gorm:"column:offer_id;index:idx_mapping_affiliate_offer;not null"`
	AdvertiserID string    `gorm:"column:advertiser_id;index;not null"`
	ForwardURL   string    `gorm:"column:forward_url"`
	Enabled      bool      `gorm:"column:enabled;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Mapping) TableName() string {
	return "mappings"
}

// Field transform kinds.
const (
	TransformUppercase = "uppercase"
	TransformLowercase = "lowercase"
	TransformTrim      = "trim"
	TransformConcat    = "concat"
)

// FieldMapping is a per-advertiser allow-list rule: which source field goes
// out, under which name, optionally transformed. When an advertiser has any
// rules, only fields named by its rules leave the broker.
type FieldMapping struct {
	ID             string    `gorm:"column:id;primaryKey"`
	AdvertiserID   string    `gorm:"column:advertiser_id;index;not null"`
	SourceField    string    `gorm:"column:source_field;not null"`
	TargetField    string    `gorm:"column:target_field;not null"`
	Include        bool      `gorm:"column:include;default:true"`
	Transform      string    `gorm:"column:transform"`
	TransformParam string    `gorm:"column:transform_param"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FieldMapping) TableName() string {
	return "field_mappings"
}
