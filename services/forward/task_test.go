package forward

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"leadbroker/pkg/config"
	"leadbroker/services/lead"
	"leadbroker/services/mapping"
	"leadbroker/services/testutil"
)

func newTaskDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewTestDB(t,
		&lead.Lead{},
		&lead.ForwardAttempt{},
		&mapping.Advertiser{},
		&mapping.Mapping{},
		&mapping.FieldMapping{},
	)
}

func newTestTask(t *testing.T, db *gorm.DB) *Task {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Forwarder.DeliveryTimeout = 2 * time.Second

	return NewTask(TaskParams{
		DB:       db,
		Resolver: mapping.NewResolver(mapping.ResolverParams{DB: db}),
		Executor: NewExecutor(ExecutorParams{DB: db, Node: node, Cfg: cfg}),
		Cfg:      cfg,
	})
}

func seedRoute(t *testing.T, db *gorm.DB, forwardURL string) {
	t.Helper()
	require.NoError(t, db.Create(&mapping.Advertiser{
		ID: "adv_1", Name: "Acme", ForwardURL: forwardURL, Secret: "s1", Enabled: true,
	}).Error)
	require.NoError(t, db.Create(&mapping.Mapping{
		ID: "map_1", AffiliateID: "aff_1", OfferID: "off_1", AdvertiserID: "adv_1", Enabled: true,
	}).Error)
}

func seedLead(t *testing.T, db *gorm.DB, status lead.Status) *lead.Lead {
	t.Helper()
	l := &lead.Lead{
		ID:          "lead_1",
		TxID:        "tx_1",
		AffiliateID: "aff_1",
		OfferID:     "off_1",
		Email:       strptr("user@example.com"),
		Status:      status,
	}
	require.NoError(t, db.Create(l).Error)
	return l
}

func forwardTask(t *testing.T, leadID string) *asynq.Task {
	t.Helper()
	return NewForwardTask(ForwardPayload{LeadID: leadID}, 6, "default")
}

func reloadLead(t *testing.T, db *gorm.DB, id string) *lead.Lead {
	t.Helper()
	var l lead.Lead
	require.NoError(t, db.First(&l, "id = ?", id).Error)
	return &l
}

func TestNewForwardTaskPayloadRoundTrip(t *testing.T) {
	task := NewForwardTask(ForwardPayload{LeadID: "lead_1", TraceID: "trace_1"}, 6, "default")
	require.Equal(t, TaskLeadForward, task.Type())

	var p ForwardPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	require.Equal(t, "lead_1", p.LeadID)
	require.Equal(t, "trace_1", p.TraceID)
}

func TestHandleForwardLeadTaskBadPayload(t *testing.T) {
	tk := newTestTask(t, newTaskDB(t))

	err := tk.HandleForwardLeadTask(context.Background(), asynq.NewTask(TaskLeadForward, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleForwardLeadTaskEmptyLeadID(t *testing.T) {
	db := newTaskDB(t)
	seedLead(t, db, lead.StatusPending)
	tk := newTestTask(t, db)

	// valid JSON without a lead id must not fall through to an open query
	err := tk.HandleForwardLeadTask(context.Background(), asynq.NewTask(TaskLeadForward, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.Equal(t, lead.StatusPending, reloadLead(t, db, "lead_1").Status)
}

func TestHandleForwardLeadTaskUnknownLead(t *testing.T) {
	tk := newTestTask(t, newTaskDB(t))

	err := tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "ghost"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleForwardLeadTaskSkipsNonPendingLead(t *testing.T) {
	db := newTaskDB(t)
	seedLead(t, db, lead.StatusForwarded)
	tk := newTestTask(t, db)

	require.NoError(t, tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "lead_1")))

	var attempts int64
	require.NoError(t, db.Model(&lead.ForwardAttempt{}).Count(&attempts).Error)
	require.Zero(t, attempts)
}

func TestHandleForwardLeadTaskNoMapping(t *testing.T) {
	db := newTaskDB(t)
	seedLead(t, db, lead.StatusPending)
	tk := newTestTask(t, db)

	require.NoError(t, tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "lead_1")))

	require.Equal(t, lead.StatusNoMapping, reloadLead(t, db, "lead_1").Status)
}

func TestHandleForwardLeadTaskDelivered(t *testing.T) {
	db := newTaskDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"ext_9"}`))
	}))
	defer srv.Close()

	seedRoute(t, db, srv.URL)
	seedLead(t, db, lead.StatusPending)
	tk := newTestTask(t, db)

	require.NoError(t, tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "lead_1")))

	l := reloadLead(t, db, "lead_1")
	require.Equal(t, lead.StatusForwarded, l.Status)
	require.NotNil(t, l.AdvertiserID)
	require.Equal(t, "adv_1", *l.AdvertiserID)
	require.JSONEq(t, `{"id":"ext_9"}`, string(l.AdvertiserResponse))

	var attempts int64
	require.NoError(t, db.Model(&lead.ForwardAttempt{}).Count(&attempts).Error)
	require.EqualValues(t, 1, attempts)
}

func TestHandleForwardLeadTaskRejected(t *testing.T) {
	db := newTaskDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate lead", http.StatusConflict)
	}))
	defer srv.Close()

	seedRoute(t, db, srv.URL)
	seedLead(t, db, lead.StatusPending)
	tk := newTestTask(t, db)

	err := tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "lead_1"))
	require.ErrorIs(t, err, asynq.SkipRetry)

	require.Equal(t, lead.StatusForwardFailed, reloadLead(t, db, "lead_1").Status)
}

func TestHandleForwardLeadTaskTransientExhausted(t *testing.T) {
	db := newTaskDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	seedRoute(t, db, srv.URL)
	seedLead(t, db, lead.StatusPending)
	tk := newTestTask(t, db)

	// without task metadata on the context the handler sees the final attempt
	err := tk.HandleForwardLeadTask(context.Background(), forwardTask(t, "lead_1"))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	require.Equal(t, lead.StatusForwardFailed, reloadLead(t, db, "lead_1").Status)
}

func TestRawJSON(t *testing.T) {
	require.Nil(t, rawJSON(""))
	require.JSONEq(t, `{"ok":true}`, string(rawJSON(`{"ok":true}`)))
	require.JSONEq(t, `"plain text body"`, string(rawJSON("plain text body")))
}
