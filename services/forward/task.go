package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"leadbroker/pkg/config"
	"leadbroker/pkg/repository"
	"leadbroker/services/lead"
	"leadbroker/services/mapping"
)

const TaskLeadForward = "lead:forward"

// Single-flight per lead: a second enqueue for the same lead is a no-op while
// the first task is still in flight or waiting on backoff.
const forwardUniqueTTL = 30 * time.Minute

type ForwardPayload struct {
	LeadID  string `json:"lead_id"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewForwardTask builds the durable forward job for one lead. maxAttempts is
// the total attempt budget; the retry layer owns scheduling, so the task only
// carries maxAttempts-1 retries on top of the first run.
func NewForwardTask(p ForwardPayload, maxAttempts int, queue string) *asynq.Task {
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	if queue == "" {
		queue = "default"
	}
	payload, _ := json.Marshal(p)
	return asynq.NewTask(TaskLeadForward, payload,
		asynq.MaxRetry(maxAttempts-1),
		asynq.Timeout(60*time.Second),
		asynq.Queue(queue),
		asynq.Unique(forwardUniqueTTL),
	)
}

var Module = fx.Module("forward",
	fx.Provide(NewExecutor, NewService, NewTask),
)

type Task struct {
	resolver *mapping.Resolver
	executor *Executor

	leads repository.Repository[lead.Lead]
}

type TaskParams struct {
	fx.In
	DB       *gorm.DB
	Resolver *mapping.Resolver
	Executor *Executor
	Cfg      *config.Config
}

func NewTask(p TaskParams) *Task {
	return &Task{
		resolver: p.Resolver,
		executor: p.Executor,
		leads:    repository.ProvideStore[lead.Lead](p.DB),
	}
}

// HandleForwardLeadTask is one unit of work: a single delivery attempt for
// one lead. Returning an error hands scheduling back to the job layer; the
// handler's job is classification and the terminal status transition.
func (t *Task) HandleForwardLeadTask(ctx context.Context, task *asynq.Task) error {
	var payload ForwardPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.LeadID == "" {
		return fmt.Errorf("payload missing lead id: %w", asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	attemptNo := retried + 1

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("lead_id", payload.LeadID),
		zap.Int("attempt", attemptNo),
		zap.String("trace_id", payload.TraceID),
	)

	l, err := t.leads.FindOne(ctx, &lead.Lead{ID: payload.LeadID})
	if err != nil {
		zapLog.Error("failed to load lead", zap.Error(err))
		return err
	}
	if l == nil {
		zapLog.Warn("lead not found, dropping forward task")
		return fmt.Errorf("lead %s not found: %w", payload.LeadID, asynq.SkipRetry)
	}

	// idempotent guard against duplicate job execution
	if l.Status != lead.StatusPending {
		zapLog.Info("lead no longer pending, skipping", zap.String("status", l.Status.String()))
		return nil
	}

	route, err := t.resolver.Resolve(ctx, l.AffiliateID, l.OfferID)
	if err != nil {
		zapLog.Error("failed to resolve mapping", zap.Error(err))
		return err
	}
	if route == nil {
		// missing configuration; no retry can fix it
		zapLog.Warn("no enabled mapping for lead")
		if err := t.leads.Update(ctx, l.ID, map[string]any{"status": lead.StatusNoMapping}); err != nil {
			return err
		}
		terminalTotal.WithLabelValues(string(lead.StatusNoMapping)).Inc()
		return nil
	}

	delivery, err := t.executor.Deliver(ctx, l, route, attemptNo)
	if err != nil {
		// the attempt row was not written; at-least-once redelivery retries
		zapLog.Error("delivery attempt failed before audit log", zap.Error(err))
		return err
	}

	switch delivery.Outcome {
	case OutcomeDelivered:
		zapLog.Info("lead forwarded", zap.Int("status_code", delivery.StatusCode))
		if err := t.leads.Update(ctx, l.ID, map[string]any{
			"status":              lead.StatusForwarded,
			"advertiser_id":       route.Advertiser.ID,
			"advertiser_response": rawJSON(delivery.ResponseBody),
		}); err != nil {
			return err
		}
		terminalTotal.WithLabelValues(string(lead.StatusForwarded)).Inc()
		return nil

	case OutcomeRejected:
		zapLog.Warn("advertiser rejected lead", zap.Int("status_code", delivery.StatusCode))
		if err := t.leads.Update(ctx, l.ID, map[string]any{
			"status":              lead.StatusForwardFailed,
			"advertiser_id":       route.Advertiser.ID,
			"advertiser_response": rawJSON(delivery.ResponseBody),
		}); err != nil {
			return err
		}
		terminalTotal.WithLabelValues(string(lead.StatusForwardFailed)).Inc()
		return fmt.Errorf("advertiser rejected delivery with status %d: %w", delivery.StatusCode, asynq.SkipRetry)

	default: // OutcomeTransient
		cause := delivery.Err
		if cause == nil {
			cause = fmt.Errorf("advertiser responded with status %d", delivery.StatusCode)
		}
		if retried >= maxRetry {
			zapLog.Error("delivery attempts exhausted", zap.Error(cause))
			if err := t.leads.Update(ctx, l.ID, map[string]any{
				"status":        lead.StatusForwardFailed,
				"advertiser_id": route.Advertiser.ID,
			}); err != nil {
				return err
			}
			terminalTotal.WithLabelValues(string(lead.StatusForwardFailed)).Inc()
			return cause
		}
		zapLog.Warn("transient delivery failure, retrying", zap.Error(cause))
		return cause
	}
}

// rawJSON preserves the advertiser response blob; non-JSON bodies are stored
// as a JSON string so the column stays valid.
func rawJSON(body string) datatypes.JSON {
	if body == "" {
		return nil
	}
	if json.Valid([]byte(body)) {
		return datatypes.JSON(body)
	}
	quoted, _ := json.Marshal(body)
	return datatypes.JSON(quoted)
}
