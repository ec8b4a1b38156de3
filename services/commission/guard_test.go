package commission

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leadbroker/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestGuard(t *testing.T) (*Guard, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &Commission{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewGuard(GuardParams{DB: db, Node: node}), db
}

func strptr(s string) *string { return &s }

func TestCreateOnce(t *testing.T) {
	g, db := newTestGuard(t)

	created, err := g.CreateOnce(context.Background(), &Commission{
		LeadID:       strptr("lead_1"),
		AdvertiserID: "adv_1",
		AffiliateID:  "aff_1",
		Amount:       12.5,
		Source:       SourceAuto,
	})
	require.NoError(t, err)
	require.True(t, created)

	var rows []Commission
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NotEmpty(t, rows[0].ID)
	require.Equal(t, 12.5, rows[0].Amount)
}

func TestCreateOnceDuplicateIsNoOp(t *testing.T) {
	g, db := newTestGuard(t)

	first, err := g.CreateOnce(context.Background(), &Commission{
		LeadID: strptr("lead_1"), AdvertiserID: "adv_1", AffiliateID: "aff_1", Amount: 12.5,
	})
	require.NoError(t, err)
	require.True(t, first)

	// same pair with a different amount must not insert or overwrite
	second, err := g.CreateOnce(context.Background(), &Commission{
		LeadID: strptr("lead_1"), AdvertiserID: "adv_1", AffiliateID: "aff_1", Amount: 99,
	})
	require.NoError(t, err)
	require.False(t, second)

	var rows []Commission
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, 12.5, rows[0].Amount)
}

func TestCreateOncePerAdvertiser(t *testing.T) {
	g, db := newTestGuard(t)

	for _, adv := range []string{"adv_1", "adv_2"} {
		created, err := g.CreateOnce(context.Background(), &Commission{
			LeadID: strptr("lead_1"), AdvertiserID: adv, AffiliateID: "aff_1", Amount: 10,
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	var count int64
	require.NoError(t, db.Model(&Commission{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}
