package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/mailing"
	"github.com/ignite/audience-dispatch/internal/repository/memory"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
	"github.com/ignite/audience-dispatch/internal/service/delivery"
	"github.com/ignite/audience-dispatch/internal/service/ledger"
	"github.com/ignite/audience-dispatch/internal/service/sending"
	"github.com/ignite/audience-dispatch/internal/service/suppression"
	"github.com/ignite/audience-dispatch/internal/settings"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store

	mu   sync.Mutex
	sent []*domain.EmailMessage
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.New()
	gone := time.Now().Add(-time.Hour)
	store.PutContact(domain.Contact{ID: "a", Email: "a@example.com", Name: "Ann", Tags: []string{"vip"}})
	store.PutContact(domain.Contact{ID: "b", Email: "b@example.com", Tags: []string{"vip"}})
	store.PutContact(domain.Contact{ID: "c", Email: "c@example.com", Tags: []string{"vip", "new"}})
	store.PutContact(domain.Contact{ID: "u", Email: "u@example.com", Tags: []string{"vip"}, UnsubscribedAt: &gone})
	store.PutAudience(domain.Audience{ID: "vips", Name: "VIPs", Rules: domain.RuleTree{
		{Conditions: []domain.Condition{domain.TagCondition{Tag: "vip"}, domain.UnsubscribedCondition{Value: false}}},
	}})

	ta := &testAPI{t: t, store: store}

	cfg := settings.NewStore(store.Settings())
	renderer := mailing.NewRenderer(nil, cfg)
	resolver := segmentation.NewResolver(store.Audiences(), store.Contacts())
	supp := suppression.NewService(store.Suppressions())
	events := ledger.New(store.Events())
	svc := campaign.NewService(store.Campaigns(), store.Recipients(), events, renderer, resolver)
	builder := campaign.NewRecipientBuilder(resolver, store.Contacts(), store.Recipients(), supp)

	sender := sending.SenderFunc(func(_ context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		ta.sent = append(ta.sent, msg)
		return &domain.SendResult{MessageID: msg.ID, SentAt: time.Now()}, nil
	})
	orch := delivery.NewOrchestrator(svc, builder, store.Recipients(), renderer, sender, delivery.Config{
		Workers:        2,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  time.Millisecond,
	})
	orch.SetBouncer(supp)

	h := NewHandlers(svc, builder, orch, resolver, cfg, supp)
	ta.router = SetupRoutes(h, NewHealthChecker(nil, nil), nil)
	return ta
}

func (ta *testAPI) do(method, path string, body any) *httptest.ResponseRecorder {
	ta.t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, strings.NewReader(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(ta.t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ta *testAPI) createDraft() domain.Campaign {
	ta.t.Helper()
	rec := ta.do(http.MethodPost, "/api/campaigns", campaign.CreateInput{
		Subject:     "Spring sale",
		FromName:    "Shop",
		FromEmail:   "shop@example.com",
		AudienceID:  "vips",
		HTMLContent: "<p>{{ campaign.subject }}: use {{ discount_code | default: 'SALE' }}</p>",
	})
	require.Equal(ta.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.Campaign](ta.t, rec)
}

func TestCreateAndGetCampaign(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()
	assert.Equal(t, domain.CampaignDraft, c.Status)

	rec := ta.do(http.MethodGet, "/api/campaigns/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[domain.Campaign](t, rec)
	assert.Equal(t, "Spring sale", got.Subject)

	rec = ta.do(http.MethodGet, "/api/campaigns?status=draft", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Data  []domain.Campaign `json:"data"`
		Total int               `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Data, 1)
}

func TestCreateCampaign_Validation(t *testing.T) {
	ta := setupTestAPI(t)

	rec := ta.do(http.MethodPost, "/api/campaigns", map[string]string{"subject": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ta.do(http.MethodPost, "/api/campaigns", `{"subject":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ta.do(http.MethodGet, "/api/campaigns/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleSendAndResend(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()

	rec := ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.CampaignQueued, decodeBody[domain.Campaign](t, rec).Status)

	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[delivery.Result](t, rec)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Stats.Sent)
	assert.Len(t, ta.sent, 3)

	rec = ta.do(http.MethodGet, "/api/campaigns/"+c.ID+"/recipients?status=sent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody[struct {
		Data []domain.CampaignRecipient `json:"data"`
	}](t, rec)
	assert.Len(t, rows.Data, 3)

	rec = ta.do(http.MethodGet, "/api/campaigns/"+c.ID+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[struct {
		Data []domain.CampaignEvent `json:"data"`
	}](t, rec)
	require.NotEmpty(t, events.Data)
	assert.Equal(t, domain.EventCompleted, events.Data[0].Type)

	// A second send loses the claim.
	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/send", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/resend", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = decodeBody[delivery.Result](t, rec)
	assert.Equal(t, 0, res.Stats.Attempted)
	assert.Len(t, ta.sent, 3)
}

func TestCancelOnlyQueued(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()

	rec := ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}](t, rec)
	assert.Equal(t, "conflict", body.Code)
	assert.Equal(t, "draft", body.Details["actual"])

	require.Equal(t, http.StatusOK, ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil).Code)
	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.CampaignCanceled, decodeBody[domain.Campaign](t, rec).Status)

	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/recipients/prepare", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	assert.Equal(t, http.StatusNoContent, ta.do(http.MethodDelete, "/api/campaigns/"+c.ID, nil).Code)
}

func TestUpdateCampaign_DraftOnly(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()

	rec := ta.do(http.MethodPatch, "/api/campaigns/"+c.ID, map[string]string{"subject": "Summer sale"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Summer sale", decodeBody[domain.Campaign](t, rec).Subject)

	require.Equal(t, http.StatusOK, ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil).Code)
	rec = ta.do(http.MethodPatch, "/api/campaigns/"+c.ID, map[string]string{"subject": "Too late"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDuplicateCampaign(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()

	rec := ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	cp := decodeBody[domain.Campaign](t, rec)
	assert.NotEqual(t, c.ID, cp.ID)
	assert.Equal(t, "Spring sale (Copy)", cp.Subject)
	assert.Equal(t, domain.CampaignDraft, cp.Status)
}

func TestPrepareRecipients(t *testing.T) {
	ta := setupTestAPI(t)
	c := ta.createDraft()

	rec := ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/recipients/prepare", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "drafts have no snapshot yet")

	require.Equal(t, http.StatusOK, ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil).Code)
	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/recipients/prepare", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), decodeBody[map[string]any](t, rec)["recipients"])

	rec = ta.do(http.MethodGet, "/api/campaigns/"+c.ID+"/recipients?status=delivered", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleWithoutRecipients(t *testing.T) {
	ta := setupTestAPI(t)
	ta.store.PutAudience(domain.Audience{ID: "nobody", Rules: domain.RuleTree{
		{Conditions: []domain.Condition{domain.TagCondition{Tag: "ghost"}}},
	}})
	rec := ta.do(http.MethodPost, "/api/campaigns", campaign.CreateInput{
		Subject: "Empty", AudienceID: "nobody", TextContent: "hi",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decodeBody[domain.Campaign](t, rec)

	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreviewAudiences(t *testing.T) {
	ta := setupTestAPI(t)

	rec := ta.do(http.MethodPost, "/api/audiences/preview",
		`{"rules":[{"rules":[{"field":"tag","value":"new"}]},{"rules":[{"field":"tag","value":"vip"},{"field":"unsubscribed","value":false}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, decodeBody[previewResponse](t, rec).Count)

	rec = ta.do(http.MethodPost, "/api/audiences/preview",
		`{"rules":[{"rules":[{"field":"tag","value":"new"}]},{"rules":[{"field":"country","value":"NL"}]}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	bad := decodeBody[struct {
		Code    string              `json:"code"`
		Details map[string][]string `json:"details"`
	}](t, rec)
	assert.Equal(t, "invalid_rules", bad.Code)
	require.Len(t, bad.Details["problems"], 1)
	assert.Contains(t, bad.Details["problems"][0], "country")

	rec = ta.do(http.MethodGet, "/api/audiences/vips/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decodeBody[previewResponse](t, rec).Count)

	rec = ta.do(http.MethodGet, "/api/audiences/missing/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	ta := setupTestAPI(t)

	rec := ta.do(http.MethodPut, "/api/settings", map[string]string{
		"default_link":   "https://shop.example.com",
		"discount_code":  "SPRING10",
		"webhook_url":    "https://hooks.example.com/campaigns",
		"webhook_secret": "s3cret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "s3cret")

	rec = ta.do(http.MethodPut, "/api/settings", map[string]string{"discount_code": "SUMMER20"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(http.MethodPost, "/api/settings/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "SUMMER20", got["discount_code"])
	assert.Equal(t, true, got["webhook_signed"])
}

func TestSuppressionEndpoints(t *testing.T) {
	ta := setupTestAPI(t)

	rec := ta.do(http.MethodPost, "/api/suppressions", map[string]string{"email": "B@Example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ta.do(http.MethodPost, "/api/suppressions", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ta.do(http.MethodGet, "/api/suppressions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Data  []domain.Suppression `json:"data"`
		Total int                  `json:"total"`
	}](t, rec)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "b@example.com", list.Data[0].Email)

	// Suppressed contacts are left out of new snapshots.
	c := ta.createDraft()
	require.Equal(t, http.StatusOK, ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/schedule", nil).Code)
	rec = ta.do(http.MethodPost, "/api/campaigns/"+c.ID+"/recipients/prepare", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody[map[string]any](t, rec)["recipients"])

	assert.Equal(t, http.StatusNoContent, ta.do(http.MethodDelete, "/api/suppressions/b@example.com", nil).Code)
	assert.Equal(t, http.StatusNotFound, ta.do(http.MethodDelete, "/api/suppressions/b@example.com", nil).Code)
}

func TestHealthz(t *testing.T) {
	ta := setupTestAPI(t)
	rec := ta.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[HealthStatus](t, rec)
	assert.Equal(t, "healthy", got.Status)
	assert.Equal(t, "not_configured", got.Checks["database"].Status)

	assert.Equal(t, http.StatusOK, ta.do(http.MethodGet, "/healthz/ready", nil).Code)
}
