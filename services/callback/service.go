package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"leadbroker/pkg/config"
	"leadbroker/pkg/errutil"
	"leadbroker/pkg/repository"
	"leadbroker/pkg/signature"
	"leadbroker/services/commission"
	"leadbroker/services/lead"
	"leadbroker/services/mapping"
)

var Module = fx.Module("callback",
	fx.Provide(NewReplayGuard, NewRateLimiter, NewService, NewHandler),
)

// Advertiser status vocabulary the broker maps onto its own state machine.
// Anything else updates advertiser_status without touching canonical status.
const (
	AdvertiserStatusApproved = "approved"
	AdvertiserStatusRejected = "rejected"
)

type CallbackRequest struct {
	TxID       string   `json:"az_tx_id"`
	Status     string   `json:"status"`
	ExternalID string   `json:"external_id,omitempty"`
	Payout     *float64 `json:"payout,omitempty"`
}

type Service struct {
	node     *snowflake.Node
	verifier *signature.Verifier
	replay   ReplayGuard
	limiter  RateLimiter
	guard    *commission.Guard

	leads       repository.Repository[lead.Lead]
	advertisers repository.Repository[mapping.Advertiser]
	logs        repository.Repository[lead.CallbackLog]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Cfg     *config.Config
	Replay  ReplayGuard
	Limiter RateLimiter `optional:"true"`
	Guard   *commission.Guard
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:        p.Node,
		verifier:    signature.NewVerifier(p.Cfg.Signature.Algorithm, p.Cfg.Signature.SkewWindow),
		replay:      p.Replay,
		limiter:     p.Limiter,
		guard:       p.Guard,
		leads:       repository.ProvideStore[lead.Lead](p.DB),
		advertisers: repository.ProvideStore[mapping.Advertiser](p.DB),
		logs:        repository.ProvideStore[lead.CallbackLog](p.DB),
	}
}

// Handle reconciles one advertiser callback onto its lead. Every callback is
// appended to the audit log, accepted or not, before the caller sees the
// outcome. Acknowledgement is idempotent: a repeated approved callback is a
// success even though no new commission is created.
func (s *Service) Handle(ctx context.Context, req *CallbackRequest, rawBody []byte, sigHeader, tsHeader string) error {
	span := trace.SpanFromContext(ctx)

	zapLog := zap.L().With(
		zap.String("tx_id", req.TxID),
		zap.String("advertiser_status", req.Status),
		zap.String("trace_id", span.SpanContext().TraceID().String()),
	)

	l, err := s.leads.FindOne(ctx, &lead.Lead{TxID: req.TxID})
	if err != nil {
		zapLog.Error("failed to load lead", zap.Error(err))
		return err
	}
	if l == nil {
		s.logCallback(ctx, nil, nil, req.TxID, rawBody, sigHeader, tsHeader, false, "unknown_transaction")
		return errutil.NotFound("unknown transaction id", nil)
	}

	// without an assigned advertiser there is no secret to verify against
	if l.AdvertiserID == nil {
		s.logCallback(ctx, &l.ID, nil, req.TxID, rawBody, sigHeader, tsHeader, false, "no_advertiser_assigned")
		return errutil.UnprocessableEntity("lead has no advertiser assigned", nil)
	}

	adv, err := s.advertisers.FindOne(ctx, &mapping.Advertiser{ID: *l.AdvertiserID})
	if err != nil {
		return err
	}
	if adv == nil {
		s.logCallback(ctx, &l.ID, l.AdvertiserID, req.TxID, rawBody, sigHeader, tsHeader, false, "unknown_advertiser")
		return errutil.UnprocessableEntity("lead references unknown advertiser", nil)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, adv.ID)
		if err != nil {
			// a degraded limiter must not block reconciliation
			zapLog.Warn("rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			s.logCallback(ctx, &l.ID, &adv.ID, req.TxID, rawBody, sigHeader, tsHeader, false, "rate_limited")
			return errutil.TooManyRequest("callback rate limit exceeded", nil)
		}
	}

	if adv.Secret != "" {
		reason, err := s.authenticate(ctx, adv.Secret, rawBody, sigHeader, tsHeader)
		if err != nil {
			return err
		}
		if reason != "" {
			zapLog.Warn("callback rejected", zap.String("reason", reason))
			s.logCallback(ctx, &l.ID, &adv.ID, req.TxID, rawBody, sigHeader, tsHeader, false, reason)
			return errutil.Unauthorized("callback authentication failed", nil,
				errutil.WithDetails(errutil.Detail{Field: "signature", Message: reason}))
		}
	}

	if err := s.logCallback(ctx, &l.ID, &adv.ID, req.TxID, rawBody, sigHeader, tsHeader, true, ""); err != nil {
		// the audit row must exist before any status transition
		return err
	}

	updates := map[string]any{"advertiser_status": req.Status}
	if req.Payout != nil {
		updates["payout"] = *req.Payout
	}

	approved := false
	switch req.Status {
	case AdvertiserStatusApproved:
		if l.ConvertedAt == nil {
			now := time.Now().UTC()
			updates["converted_at"] = now
			updates["status"] = lead.StatusApproved
		}
		approved = true
	case AdvertiserStatusRejected:
		// callbacks only move forward; an approved lead is never downgraded
		if l.Status != lead.StatusApproved {
			updates["status"] = lead.StatusRejected
		}
	}

	if err := s.leads.Update(ctx, l.ID, updates); err != nil {
		zapLog.Error("failed to update lead from callback", zap.Error(err))
		return err
	}

	if approved && req.Payout != nil && *req.Payout > 0 {
		created, err := s.guard.CreateOnce(ctx, &commission.Commission{
			LeadID:       &l.ID,
			AdvertiserID: adv.ID,
			AffiliateID:  l.AffiliateID,
			Amount:       *req.Payout,
			Description:  fmt.Sprintf("conversion payout for tx %s", req.TxID),
			Source:       commission.SourceAuto,
		})
		if err != nil {
			return err
		}
		if created {
			zapLog.Info("commission created", zap.Float64("amount", *req.Payout))
		}
	}

	return nil
}

// authenticate returns a non-empty rejection reason for auth failures; an
// error only for infrastructure trouble.
func (s *Service) authenticate(ctx context.Context, secret string, rawBody []byte, sigHeader, tsHeader string) (string, error) {
	if sigHeader == "" || tsHeader == "" {
		return "missing_signature", nil
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return "invalid_timestamp", nil
	}

	if !s.verifier.Verify(secret, ts, rawBody, sigHeader) {
		return "invalid_signature", nil
	}

	seen, err := s.replay.Seen(ctx, ts, sigHeader)
	if err != nil {
		// fail closed: without the replay cache we cannot accept safely
		return "", err
	}
	if seen {
		return "replay", nil
	}

	return "", nil
}

func (s *Service) logCallback(ctx context.Context, leadID, advertiserID *string, txID string, rawBody []byte, sigHeader, tsHeader string, accepted bool, reason string) error {
	payload := datatypes.JSON(rawBody)
	if !json.Valid(rawBody) {
		// attacker-controlled junk still gets audited, wrapped as a string
		quoted, _ := json.Marshal(string(rawBody))
		payload = datatypes.JSON(quoted)
	}

	row := &lead.CallbackLog{
		ID:           s.node.Generate().String(),
		LeadID:       leadID,
		AdvertiserID: advertiserID,
		TxID:         txID,
		Payload:      payload,
		Accepted:     accepted,
	}
	if sigHeader != "" {
		row.Signature = &sigHeader
	}
	if ts, err := strconv.ParseInt(tsHeader, 10, 64); err == nil {
		row.SignatureTimestamp = &ts
	}
	if reason != "" {
		row.RejectReason = &reason
	}

	if err := s.logs.Create(ctx, row); err != nil {
		zap.L().Error("failed to append callback log", zap.String("tx_id", txID), zap.Error(err))
		return err
	}
	return nil
}
