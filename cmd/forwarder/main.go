package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"leadbroker/pkg/config"
	"leadbroker/pkg/db"
	"leadbroker/pkg/logger"
	"leadbroker/pkg/task"
	"leadbroker/services/forward"
	"leadbroker/services/mapping"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		task.Client,
		task.Server,
		mapping.Module,
		forward.Module,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(registerHandlers),
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

func registerHandlers(mux *asynq.ServeMux, t *forward.Task) {
	mux.HandleFunc(forward.TaskLeadForward, t.HandleForwardLeadTask)
}
