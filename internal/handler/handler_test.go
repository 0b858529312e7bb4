package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"groupbuy-be/internal/domain"
	"groupbuy-be/internal/gateway"
	"groupbuy-be/internal/middleware"
	"groupbuy-be/internal/notify"
	"groupbuy-be/internal/repository"
	"groupbuy-be/internal/service"
	"groupbuy-be/internal/service/sweep"
	"groupbuy-be/pkg/logger"
	"groupbuy-be/pkg/redis"
)

const testJWTSecret = "test-secret"

type testServer struct {
	*httptest.Server
	store *repository.MemStore
}

func newTestServer(t *testing.T, cache *redis.Client) *testServer {
	t.Helper()

	log := logger.NewNop()
	store := repository.NewMemStore()
	gw := gateway.NewNoop(log)
	dispatcher := notify.NewLogDispatcher(log)
	exporter := notify.NewLogBookingExporter(log)

	groups := service.NewGroupService(store, dispatcher, exporter, gw, log, 15*time.Minute)
	payments := service.NewPaymentService(store, groups, gw, log)
	campaigns := service.NewCampaignService(store, cache, log)
	sweeper := sweep.NewSweeper(store, groups, payments, log, time.Minute)

	campaignHandler := NewCampaignHandler(campaigns, log)
	groupHandler := NewGroupHandler(groups, payments, log)
	adminHandler := NewAdminHandler(groups, payments, sweeper, cache, log)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/campaigns/{id}", campaignHandler.Get)
		r.Post("/campaigns/{id}/groups", groupHandler.Create)
		r.Get("/groups/{code}", groupHandler.Get)
		r.Post("/groups/{code}/join", groupHandler.Join)
		r.Get("/participants/{id}/payment", groupHandler.PaymentStatus)
		r.Post("/participants/{id}/payments", groupHandler.RetryPayment)
		r.Post("/payments/{id}/charge", groupHandler.InitiateCharge)
		r.Post("/payments/{id}/confirm", groupHandler.ConfirmCharge)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(testJWTSecret, log))
			r.Post("/campaigns", campaignHandler.Create)
			r.Post("/payments/{id}/verify", adminHandler.VerifyPayment)
			r.Post("/payments/{id}/refund", adminHandler.RefundPayment)
			r.Post("/groups/{id}/cancel", adminHandler.CancelGroup)
			r.Post("/groups/{id}/force-success", adminHandler.ForceSuccess)
			r.Post("/participants/{id}/cancel", adminHandler.CancelParticipant)
			r.Post("/sweep", adminHandler.RunSweep)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: store}
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	claims := middleware.AdminClaims{
		Username: "supakit",
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, method, url string, body interface{}, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, raw
}

func authHeader(t *testing.T) map[string]string {
	return map[string]string{"Authorization": "Bearer " + adminToken(t, "admin")}
}

func campaignPayload() map[string]interface{} {
	now := time.Now().UTC()
	return map[string]interface{}{
		"name":                "Phuket Getaway 3D2N",
		"product_type":        "tour",
		"regular_price":       "18900.00",
		"group_price":         "14900.00",
		"min_participants":    2,
		"campaign_start_date": now.Add(-time.Hour).Format(time.RFC3339),
		"campaign_end_date":   now.Add(7 * 24 * time.Hour).Format(time.RFC3339),
		"duration_hours":      48,
		"total_slots":         5,
	}
}

func decodeData(t *testing.T, raw []byte, dst interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func TestGroupBuyFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	// Admin opens a campaign.
	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/v1/admin/campaigns", campaignPayload(), authHeader(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var campaign domain.Campaign
	decodeData(t, raw, &campaign)
	require.NotZero(t, campaign.ID)

	// A leader opens a group.
	resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/campaigns/%d/groups", ts.URL, campaign.ID), map[string]interface{}{
		"leader":         map[string]string{"name": "Anan", "email": "anan@example.com", "phone": "0812345678"},
		"pax_count":      2,
		"payment_method": "bank",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var created domain.JoinResult
	decodeData(t, raw, &created)
	assert.Equal(t, domain.GroupStatusActive, created.Group.Status)

	// The share page shows the group.
	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/v1/groups/"+created.Group.ShareToken, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view domain.GroupView
	decodeData(t, raw, &view)
	assert.Equal(t, created.Group.GroupCode, view.GroupCode)
	assert.Equal(t, 1, view.CurrentParticipants)

	// A friend joins and fills the group.
	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/api/v1/groups/"+created.Group.GroupCode+"/join", map[string]interface{}{
		"participant":    map[string]string{"name": "Baramee", "email": "baramee@example.com", "phone": "0898765432"},
		"pax_count":      1,
		"payment_method": "qr",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var joined domain.JoinResult
	decodeData(t, raw, &joined)
	assert.Equal(t, domain.GroupStatusSuccess, joined.Group.Status)

	// The admin verifies the leader's transfer slip.
	resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/admin/payments/%d/verify", ts.URL, created.Payment.ID), map[string]interface{}{
		"payment_method": "bank",
		"slip_image":     "slips/abc.jpg",
	}, authHeader(t))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var verified domain.Payment
	decodeData(t, raw, &verified)
	assert.Equal(t, domain.PaymentStatusPaid, verified.Status)
	assert.Equal(t, "supakit", verified.AdminVerifiedBy)

	// The participant's payment page reflects it.
	resp, raw = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/participants/%d/payment", ts.URL, created.Participant.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status domain.Payment
	decodeData(t, raw, &status)
	assert.Equal(t, domain.PaymentStatusPaid, status.Status)
}

func TestErrorEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/api/v1/campaigns/99", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope struct {
		Error struct {
			Type      string `json:"type"`
			Message   string `json:"message"`
			RequestID string `json:"request_id"`
			Timestamp string `json:"timestamp"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	assert.Equal(t, "not_found", envelope.Error.Type)
	assert.NotEmpty(t, envelope.Error.Message)
	assert.NotEmpty(t, envelope.Error.RequestID)
	assert.NotEmpty(t, envelope.Error.Timestamp)
}

func TestValidationRejections(t *testing.T) {
	ts := newTestServer(t, nil)

	t.Run("non-numeric id", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+"/api/v1/campaigns/abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown body field", func(t *testing.T) {
		resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/v1/campaigns/1/groups", map[string]interface{}{
			"leader":   map[string]string{"name": "Anan", "email": "anan@example.com"},
			"surprise": true,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(raw))
	})

	t.Run("missing charge id", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/payments/1/confirm", map[string]interface{}{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdminAuth(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.URL + "/api/v1/admin/campaigns"

	t.Run("missing header", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, url, campaignPayload(), nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("malformed header", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, url, campaignPayload(), map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret", func(t *testing.T) {
		claims := middleware.AdminClaims{Username: "supakit", Role: "admin"}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		resp, _ := doJSON(t, http.MethodPost, url, campaignPayload(), map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("non-admin role", func(t *testing.T) {
		resp, _ := doJSON(t, http.MethodPost, url, campaignPayload(), map[string]string{"Authorization": "Bearer " + adminToken(t, "viewer")})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAdminIdempotencyGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	cache, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	ts := newTestServer(t, cache)

	// Campaign, group and a paid leader to act on.
	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/api/v1/admin/campaigns", campaignPayload(), authHeader(t))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var campaign domain.Campaign
	decodeData(t, raw, &campaign)

	resp, raw = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/campaigns/%d/groups", ts.URL, campaign.ID), map[string]interface{}{
		"leader":         map[string]string{"name": "Anan", "email": "anan@example.com"},
		"pax_count":      1,
		"payment_method": "bank",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created domain.JoinResult
	decodeData(t, raw, &created)

	headers := authHeader(t)
	headers["X-Idempotency-Key"] = "cancel-group-once"
	cancelURL := fmt.Sprintf("%s/api/v1/admin/groups/%d/cancel", ts.URL, created.Group.ID)
	body := map[string]string{"reason": "operator error"}

	resp, raw = doJSON(t, http.MethodPost, cancelURL, body, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	// The retry with the same key is rejected before it reaches the
	// service, so it does not surface the terminal-state error.
	resp, raw = doJSON(t, http.MethodPost, cancelURL, body, headers)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(raw), "already submitted")
}
