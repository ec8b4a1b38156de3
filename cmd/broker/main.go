package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leadbroker/internal/httpapi"
	"leadbroker/internal/server"
	"leadbroker/pkg/config"
	"leadbroker/pkg/db"
	"leadbroker/pkg/health"
	"leadbroker/pkg/logger"
	"leadbroker/pkg/redis"
	"leadbroker/pkg/task"
	"leadbroker/services/callback"
	"leadbroker/services/commission"
	"leadbroker/services/forward"
	"leadbroker/services/lead"
	"leadbroker/services/mapping"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		health.Module,
		mapping.Module,
		commission.Module,
		forward.Module,
		callback.Module,
		fx.Provide(
			provideSnowflakeNode,
			httpapi.ProvideRouter,
			server.ProvideHTTPServer,
		),
		fx.Invoke(
			migrate,
			server.Run,
		),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&lead.Lead{},
		&lead.ForwardAttempt{},
		&lead.CallbackLog{},
		&mapping.Advertiser{},
		&mapping.Mapping{},
		&mapping.FieldMapping{},
		&commission.Commission{},
	)
}
