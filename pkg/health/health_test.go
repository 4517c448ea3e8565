package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeBody struct {
	success bool
	message string
	status  string
	checks  map[string]string
}

func decodeProbe(t *testing.T, raw []byte) probeBody {
	t.Helper()
	var b probeBody
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "success":
			b.success, err = d.Bool()
		case "message":
			b.message, err = d.Str()
		case "data":
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "status":
					b.status, err = d.Str()
					return err
				case "checks":
					b.checks = map[string]string{}
					return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
						v, err := d.Str()
						b.checks[string(key)] = v
						return err
					})
				}
				return d.Skip()
			})
		default:
			return d.Skip()
		}
		return err
	})
	require.NoError(t, err)
	return b
}

func serve(t *testing.T, h *Health, p Probe) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	h.Handler(p).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, decodeProbe(t, w.Body.Bytes())
}

func ok(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveness(t *testing.T) {
	h := New()
	h.Register(Liveness, "a", ok)
	h.Register(Liveness, "db", failing("connection refused"))

	code, body := serve(t, h, Liveness)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.success)
	assert.Equal(t, "ok", body.status)
	assert.Equal(t, "liveness ok", body.message)

	db := h.checks[Liveness][1]
	runN(db, 2)
	code, _ = serve(t, h, Liveness)
	assert.Equal(t, http.StatusOK, code, "below failure threshold")

	runN(db, 1)
	code, body = serve(t, h, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, body.success)
	assert.Equal(t, "unhealthy", body.status)
	assert.Equal(t, map[string]string{"db": "connection refused"}, body.checks)
}

func TestReadiness_Gate(t *testing.T) {
	h := New()
	h.Register(Readiness, "cache", ok)

	code, body := serve(t, h, Readiness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, _ = serve(t, h, Readiness)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	// Liveness ignores the gate.
	h.SetReady(false)
	code, _ = serve(t, h, Liveness)
	assert.Equal(t, http.StatusOK, code)
}

func TestThresholds_Recovery(t *testing.T) {
	fail := true
	h := New()
	h.Register(Readiness, "db", func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}, WithThresholds(1, 2))
	h.SetReady(true)

	c := h.checks[Readiness][0]
	runN(c, 1)
	assert.False(t, h.IsReady())

	fail = false
	runN(c, 1)
	assert.False(t, h.IsReady(), "one success is below the success threshold")
	runN(c, 1)
	assert.True(t, h.IsReady())
}

func TestWithTimeout(t *testing.T) {
	h := New()
	h.Register(Liveness, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond), WithThresholds(1, 1))

	runN(h.checks[Liveness][0], 1)
	code, body := serve(t, h, Liveness)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), body.checks["slow"])
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Register(Readiness, "db", failing("down"), WithThresholds(1, 1))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingCheck(t *testing.T) {
	require.NoError(t, PingCheck("redis", pinger{})(context.Background()))

	err := PingCheck("redis", pinger{err: errors.New("refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	require.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
