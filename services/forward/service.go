package forward

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"leadbroker/pkg/config"
	"leadbroker/pkg/errutil"
	"leadbroker/pkg/repository"
	"leadbroker/pkg/task"
	"leadbroker/services/lead"
)

// Service is the enqueue-facing side of the forwarder: the tracking intake
// calls Enqueue after creating a lead, operators call Retry.
type Service struct {
	enqueuer task.Enqueuer
	leads    repository.Repository[lead.Lead]

	maxAttempts int
	queue       string
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Enqueuer task.Enqueuer
	Cfg      *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		enqueuer:    p.Enqueuer,
		leads:       repository.ProvideStore[lead.Lead](p.DB),
		maxAttempts: p.Cfg.Forwarder.MaxAttempts,
		queue:       p.Cfg.Forwarder.Queue,
	}
}

// Enqueue schedules the forward job for a freshly created lead.
func (s *Service) Enqueue(ctx context.Context, leadID string) error {
	t := NewForwardTask(ForwardPayload{LeadID: leadID}, s.maxAttempts, s.queue)
	if _, err := s.enqueuer.Enqueue(ctx, t); err != nil {
		zap.L().Error("failed to enqueue forward task", zap.String("lead_id", leadID), zap.Error(err))
		return err
	}
	return nil
}

// Retry is the operator action: reset the lead to pending and enqueue a fresh
// forward job with attempt counting restarted. This is the only path that
// re-enters pending from a terminal state.
func (s *Service) Retry(ctx context.Context, leadID string) error {
	l, err := s.leads.FindOne(ctx, &lead.Lead{ID: leadID})
	if err != nil {
		return err
	}
	if l == nil {
		return errutil.NotFound("lead not found", nil)
	}

	if err := s.leads.Update(ctx, l.ID, map[string]any{"status": lead.StatusPending}); err != nil {
		return err
	}

	zap.L().Info("lead reset for manual retry", zap.String("lead_id", leadID), zap.String("previous_status", l.Status.String()))

	return s.Enqueue(ctx, leadID)
}
