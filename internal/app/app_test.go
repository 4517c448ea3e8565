package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/memory"
)

const (
	testPepper = "pepper"
	testKey    = "storefront-key"
)

type telemetry struct{}

func (telemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (telemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func startServer(t *testing.T, rateLimit int) (*httptest.Server, *server) {
	t.Helper()

	st := memory.New()
	st.PutAPIKey(auth.APIKeyInfo{ID: "k1", KeyHash: auth.HashKey([]byte(testPepper), testKey), Name: "web"})
	st.PutCategory(product.Category{ID: "shoes", Name: "Shoes", Active: true})
	st.PutProduct(product.Product{
		ID:           "runner",
		Name:         "Runner",
		CategoryID:   "shoes",
		RegularPrice: decimal.NewFromInt(500),
		SalePrice:    decimal.NewFromInt(500),
		Sizes:        []product.Size{{Size: "9", Quantity: 10, InStock: true}},
		Active:       true,
	})

	cfg := &Config{
		Storage:      StorageMemory,
		APIKeyPepper: testPepper,
		Gateway:      GatewayConfig{Currency: "INR", Timeout: time.Second},
		Idempotency:  IdempotencyConfig{TTL: time.Hour},
		RateLimit:    RateLimitConfig{Max: rateLimit, Window: time.Minute},
		CORS:         CORSConfig{Origins: []string{"https://shop.example"}},
	}
	srv, err := newServer(t.Context(), zaptest.NewLogger(t), telemetry{}, cfg, memoryBackend(st))
	require.NoError(t, err)
	t.Cleanup(srv.close)

	ts := httptest.NewServer(srv.handler)
	t.Cleanup(ts.Close)
	return ts, srv
}

type envelope struct {
	status  int
	header  http.Header
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Error   string         `json:"error"`
	Data    map[string]any `json:"data"`
}

func send(t *testing.T, ts *httptest.Server, method, path, user, body string, hdr map[string]string) envelope {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("api_key", testKey)
		req.Header.Set("X-User-ID", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := envelope{status: resp.StatusCode, header: resp.Header}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return out
}

func TestServer_Probes(t *testing.T) {
	ts, srv := startServer(t, 100)

	live := send(t, ts, http.MethodGet, "/livez", "", "", nil)
	assert.Equal(t, http.StatusOK, live.status)
	assert.True(t, live.Success)

	ready := send(t, ts, http.MethodGet, "/readyz", "", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, ready.status)

	srv.health.SetReady(true)
	ready = send(t, ts, http.MethodGet, "/readyz", "", "", nil)
	assert.Equal(t, http.StatusOK, ready.status)
	assert.Equal(t, "ok", ready.Data["status"])
}

func TestServer_CORSAndRequestID(t *testing.T) {
	ts, _ := startServer(t, 100)

	pre := send(t, ts, http.MethodOptions, "/api/orders", "", "", map[string]string{
		"Origin":                        "https://shop.example",
		"Access-Control-Request-Method": http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, pre.status)
	assert.Equal(t, "https://shop.example", pre.header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, pre.header.Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	got := send(t, ts, http.MethodGet, "/api/cart", "u1", "", map[string]string{"X-Request-ID": "trace-me"})
	assert.Equal(t, http.StatusOK, got.status)
	assert.Equal(t, "trace-me", got.header.Get("X-Request-ID"))

	unauth := send(t, ts, http.MethodGet, "/api/cart", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, unauth.status)
	assert.NotEmpty(t, unauth.header.Get("X-Request-ID"))
}

func TestServer_Checkout(t *testing.T) {
	ts, _ := startServer(t, 100)

	added := send(t, ts, http.MethodPost, "/api/cart/items", "u1", `{"productId":"runner","size":"9","quantity":2}`, nil)
	require.Equal(t, http.StatusOK, added.status, added.Message)
	assert.Equal(t, 1000.0, added.Data["totalAmount"])

	hdr := map[string]string{"Idempotency-Key": "checkout-1"}
	body := `{"shippingAddressId":"home","paymentMethod":"cash_on_delivery"}`
	placed := send(t, ts, http.MethodPost, "/api/orders", "u1", body, hdr)
	require.Equal(t, http.StatusCreated, placed.status, placed.Message)
	order := placed.Data["order"].(map[string]any)
	assert.Equal(t, 1000.0, order["currentAmount"])

	replay := send(t, ts, http.MethodPost, "/api/orders", "u1", body, hdr)
	require.Equal(t, http.StatusOK, replay.status, replay.Message)
	assert.Equal(t, order["id"], replay.Data["order"].(map[string]any)["id"])

	cancelled := send(t, ts, http.MethodPost, "/api/orders/"+order["id"].(string)+"/cancel", "u1", `{"reason":"changed mind"}`, nil)
	require.Equal(t, http.StatusOK, cancelled.status, cancelled.Message)
	assert.Equal(t, "Cancelled", cancelled.Data["status"])
}

func TestServer_RateLimitPerUser(t *testing.T) {
	ts, _ := startServer(t, 2)

	for range 2 {
		assert.Equal(t, http.StatusOK, send(t, ts, http.MethodGet, "/api/cart", "u1", "", nil).status)
	}
	limited := send(t, ts, http.MethodGet, "/api/cart", "u1", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, limited.status)
	assert.False(t, limited.Success)
	assert.Equal(t, "rate_limited", limited.Error)

	assert.Equal(t, http.StatusOK, send(t, ts, http.MethodGet, "/api/cart", "u2", "", nil).status)
}
