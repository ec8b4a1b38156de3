package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"leadbroker/pkg/config"
	"leadbroker/pkg/repository"
	"leadbroker/pkg/signature"
	"leadbroker/services/lead"
	"leadbroker/services/mapping"
)

// Outcome classifies one delivery attempt from the transport's perspective.
type Outcome string

const (
	// OutcomeDelivered: 2xx, the advertiser accepted the lead.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeRejected: the advertiser responded below 500 but outside 2xx.
	// Client errors are not transient; no retry can fix the payload.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTransient: network error, timeout or 5xx. Retryable.
	OutcomeTransient Outcome = "transient"
)

// Delivery is the result of one attempt after the audit row is written.
type Delivery struct {
	Outcome      Outcome
	StatusCode   int
	ResponseBody string
	Err          error
}

const maxCapturedBody = 64 << 10

type Executor struct {
	node   *snowflake.Node
	client *http.Client

	attempts repository.Repository[lead.ForwardAttempt]
}

type ExecutorParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Cfg  *config.Config
}

func NewExecutor(p ExecutorParams) *Executor {
	timeout := p.Cfg.Forwarder.DeliveryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		node:     p.Node,
		client:   &http.Client{Timeout: timeout},
		attempts: repository.ProvideStore[lead.ForwardAttempt](p.DB),
	}
}

// Deliver builds, signs and posts the lead to the resolved route, then writes
// the ForwardAttempt audit row unconditionally. The row is persisted before
// the caller performs any status transition, so a crash in between is
// recoverable from the log.
func (e *Executor) Deliver(ctx context.Context, l *lead.Lead, route *mapping.Route, attemptNo int) (*Delivery, error) {
	var raw map[string]any
	if len(l.RawPayload) > 0 {
		// malformed raw payloads are attacker-controlled input; fall back to
		// canonical fields rather than failing the attempt
		_ = json.Unmarshal(l.RawPayload, &raw)
	}

	payload := BuildPayload(l, raw, route.Fields)
	payload[TxIDKey] = l.TxID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}
	if route.Advertiser.Secret != "" {
		algorithm := route.Advertiser.SignatureAlgorithm
		if algorithm == "" {
			algorithm = signature.DefaultAlgorithm
		}
		ts := time.Now().Unix()
		digest := signature.Sign(algorithm, route.Advertiser.Secret, ts, body)
		headers[signature.HeaderSignature] = signature.Header(algorithm, digest)
		headers[signature.HeaderTimestamp] = strconv.FormatInt(ts, 10)
	}

	attempt := &lead.ForwardAttempt{
		ID:             e.node.Generate().String(),
		LeadID:         l.ID,
		AdvertiserID:   route.Advertiser.ID,
		AttemptNo:      attemptNo,
		URL:            route.URL,
		RequestHeaders: mustJSON(headers),
		RequestBody:    datatypes.JSON(body),
	}

	delivery := &Delivery{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, doErr := e.client.Do(req)
	attempt.DurationMs = time.Since(start).Milliseconds()
	attemptDuration.Observe(time.Since(start).Seconds())

	if doErr != nil {
		msg := doErr.Error()
		attempt.TransportError = &msg
		delivery.Outcome = OutcomeTransient
		delivery.Err = doErr
	} else {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
		resp.Body.Close()

		sc := resp.StatusCode
		rb := string(respBody)
		attempt.StatusCode = &sc
		attempt.ResponseHeaders = mustJSON(flattenHeaders(resp.Header))
		attempt.ResponseBody = &rb

		delivery.StatusCode = sc
		delivery.ResponseBody = rb
		switch {
		case sc >= 200 && sc < 300:
			delivery.Outcome = OutcomeDelivered
		case sc >= 500:
			delivery.Outcome = OutcomeTransient
		default:
			delivery.Outcome = OutcomeRejected
		}
	}

	if err := e.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}

	attemptsTotal.WithLabelValues(string(delivery.Outcome)).Inc()

	return delivery, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func mustJSON(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
