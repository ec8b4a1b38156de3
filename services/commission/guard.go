package commission

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("commission", fx.Provide(NewGuard))

// Guard enforces at most one automatic commission per (lead, advertiser).
type Guard struct {
	db   *gorm.DB
	node *snowflake.Node
}

type GuardParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewGuard(p GuardParams) *Guard {
	return &Guard{db: p.DB, node: p.Node}
}

// CreateOnce inserts the commission unless one already exists for the same
// (lead, advertiser) pair. The check-then-insert is a single statement riding
// the unique index, so concurrent callback deliveries cannot double-insert.
// Returns whether a row was created; an existing row is a silent no-op.
func (g *Guard) CreateOnce(ctx context.Context, c *Commission) (bool, error) {
	if c.ID == "" {
		c.ID = g.node.Generate().String()
	}

	res := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lead_id"}, {Name: "advertiser_id"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected == 0 {
		zap.L().Info("commission already exists, skipping",
			zap.Stringp("lead_id", c.LeadID),
			zap.String("advertiser_id", c.AdvertiserID),
		)
		return false, nil
	}

	return true, nil
}
