package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.Keystroke("hardware")
	m.Keystroke("hardware")
	m.Keystroke("synthetic")
	m.Trigger()
	m.Expansion(ResultExpanded)
	m.Expansion(ResultUnknown)
	m.Expansion(ResultUnknown)
	m.Suppressed()
	m.ObserveInjection(20 * time.Millisecond)
	m.SetListening(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.keystrokes.WithLabelValues("hardware")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.keystrokes.WithLabelValues("synthetic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.triggers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.expansions.WithLabelValues(ResultExpanded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.expansions.WithLabelValues(ResultUnknown)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.expansions.WithLabelValues(ResultInjectError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listening))
	assert.Equal(t, 1, testutil.CollectAndCount(m.injection))

	m.SetListening(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.listening))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Keystroke("hardware")
		m.Trigger()
		m.Expansion(ResultExpanded)
		m.Suppressed()
		m.ObserveInjection(time.Second)
		m.SetListening(true)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	m := New()
	m.Trigger()

	healthy := true
	h := NewHandler(m, func() (bool, string) {
		if healthy {
			return true, "listening"
		}
		return false, "stopped"
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dotphrase_triggers_total 1")
	assert.Contains(t, rec.Body.String(), `dotphrase_expansions_total{result="inject_error"} 0`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "listening", strings.TrimSpace(rec.Body.String()))

	healthy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer("", New(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
