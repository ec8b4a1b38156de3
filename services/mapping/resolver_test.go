package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leadbroker/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newResolverDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewTestDB(t, &Advertiser{}, &Mapping{}, &FieldMapping{})
}

func seedAdvertiser(t *testing.T, db *gorm.DB, id, url string) {
	t.Helper()
	require.NoError(t, db.Create(&Advertiser{
		ID: id, Name: "Advertiser " + id, ForwardURL: url, Secret: "s1", Enabled: true,
	}).Error)
}

func TestResolveMiss(t *testing.T) {
	db := newResolverDB(t)
	r := NewResolver(ResolverParams{DB: db})

	route, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.NoError(t, err)
	require.Nil(t, route)
}

func TestResolveHit(t *testing.T) {
	db := newResolverDB(t)
	seedAdvertiser(t, db, "adv_1", "https://buyer.example/leads")
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1", Enabled: true,
	}).Error)
	require.NoError(t, db.Create(&FieldMapping{
		ID: "fm_1", AdvertiserID: "adv_1", SourceField: "email", TargetField: "email", Include: true,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})
	route, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.NoError(t, err)
	require.NotNil(t, route)
	require.Equal(t, "adv_1", route.Advertiser.ID)
	require.Equal(t, "https://buyer.example/leads", route.URL)
	require.Len(t, route.Fields, 1)
}

func TestResolveEmptyOfferMatchesExactly(t *testing.T) {
	db := newResolverDB(t)
	seedAdvertiser(t, db, "adv_1", "https://buyer.example/leads")
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1", Enabled: true,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})

	// a lead without an offer must not ride a mapping configured for off_1
	route, err := r.Resolve(context.Background(), "aff_1", "")
	require.NoError(t, err)
	require.Nil(t, route)

	// and only matches once a mapping without an offer exists
	require.NoError(t, db.Create(&Mapping{
		ID: "map_2", AffiliateID: "aff_1", OfferID: "", AdvertiserID: "adv_1", Enabled: true,
	}).Error)

	route, err = r.Resolve(context.Background(), "aff_1", "")
	require.NoError(t, err)
	require.NotNil(t, route)
	require.Equal(t, "map_2", route.Mapping.ID)
}

func TestResolveIgnoresDisabledMapping(t *testing.T) {
	db := newResolverDB(t)
	seedAdvertiser(t, db, "adv_1", "https://buyer.example/leads")
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1", Enabled: false,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})
	route, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.NoError(t, err)
	require.Nil(t, route)
}

func TestResolveMappingURLOverride(t *testing.T) {
	db := newResolverDB(t)
	seedAdvertiser(t, db, "adv_1", "https://buyer.example/leads")
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1",
		ForwardURL: "https://buyer.example/special", Enabled: true,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})
	route, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.NoError(t, err)
	require.Equal(t, "https://buyer.example/special", route.URL)
}

func TestResolveDuplicateMappingsPickLowestID(t *testing.T) {
	db := newResolverDB(t)
	seedAdvertiser(t, db, "adv_1", "https://one.example")
	seedAdvertiser(t, db, "adv_2", "https://two.example")
	require.NoError(t, db.Create(&Mapping{
		ID: "map_2", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_2", Enabled: true,
	}).Error)
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1", Enabled: true,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})
	route, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.NoError(t, err)
	require.Equal(t, "map_1", route.Mapping.ID)
	require.Equal(t, "adv_1", route.Advertiser.ID)
}

func TestResolveUnknownAdvertiserIsError(t *testing.T) {
	db := newResolverDB(t)
	require.NoError(t, db.Create(&Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "ghost", Enabled: true,
	}).Error)

	r := NewResolver(ResolverParams{DB: db})
	_, err := r.Resolve(context.Background(), "aff_1", "off_1")
	require.Error(t, err)
}
