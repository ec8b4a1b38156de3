package mapping

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leadbroker/pkg/errutil"
	"leadbroker/pkg/repository"
)

var Module = fx.Module("mapping", fx.Provide(NewResolver))

// Route is a fully resolved delivery target: the mapping, its advertiser and
// the advertiser's field rules. URL already accounts for the per-mapping
// override.
type Route struct {
	Mapping    *Mapping
	Advertiser *Advertiser
	URL        string
	Fields     []*FieldMapping
}

type Resolver struct {
	db          *gorm.DB
	advertisers repository.Repository[Advertiser]
	fields      repository.Repository[FieldMapping]
}

type ResolverParams struct {
	fx.In
	DB *gorm.DB
}

func NewResolver(p ResolverParams) *Resolver {
	return &Resolver{
		db:          p.DB,
		advertisers: repository.ProvideStore[Advertiser](p.DB),
		fields:      repository.ProvideStore[FieldMapping](p.DB),
	}
}

// Resolve finds the enabled mapping for (affiliate, offer) and loads its
// advertiser and field rules. A missing mapping returns (nil, nil): absence
// is a legitimate outcome for the caller, not an error. Multiple enabled
// mappings for the same pair is a configuration error; the lowest id wins so
// the pick stays deterministic.
func (r *Resolver) Resolve(ctx context.Context, affiliateID, offerID string) (*Route, error) {
	// explicit predicates: an empty offer id must stay in the filter, so a
	// lead without an offer only matches a mapping configured without one
	var matches []*Mapping
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND offer_id = ? AND enabled = ?", affiliateID, offerID, true).
		Order("id ASC").
		Find(&matches).Error; err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	if len(matches) > 1 {
		zap.L().Warn("multiple enabled mappings for affiliate/offer pair, picking first",
			zap.String("affiliate_id", affiliateID),
			zap.String("offer_id", offerID),
			zap.Int("matches", len(matches)),
		)
	}
	m := matches[0]

	adv, err := r.advertisers.FindOne(ctx, &Advertiser{ID: m.AdvertiserID})
	if err != nil {
		return nil, err
	}
	if adv == nil {
		return nil, errutil.UnprocessableEntity("mapping references unknown advertiser", nil,
			errutil.WithDetails(errutil.Detail{Field: "advertiser_id", Message: m.AdvertiserID}))
	}

	fields, err := r.fields.Find(ctx, &FieldMapping{AdvertiserID: adv.ID})
	if err != nil {
		return nil, err
	}

	url := adv.ForwardURL
	if m.ForwardURL != "" {
		url = m.ForwardURL
	}

	return &Route{
		Mapping:    m,
		Advertiser: adv,
		URL:        url,
		Fields:     fields,
	}, nil
}
