package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var trail []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				trail = append(trail, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, trail)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := hit(h, "", map[string]string{HeaderRequestID: "trace-123"})
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", w.Header().Get(HeaderRequestID))

	w = hit(h, "", map[string]string{HeaderRequestID: strings.Repeat("x", 129)})
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))

	w = hit(h, "", map[string]string{HeaderRequestID: "bad\x01id"})
	assert.NotEqual(t, "bad\x01id", seen)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	mux := chi.NewRouter()
	mux.Get("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Inside handler")
		w.WriteHeader(http.StatusAccepted)
	})
	find := MakeRouteFinder(mux)

	h := Wrap(mux, RequestID(), InjectLogger(zap.New(core)), LogRequests(find))
	hit(h, "", map[string]string{HeaderRequestID: "req-1"})

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "req-1", e.ContextMap()["request_id"])
	}
	last := entries[1].ContextMap()
	assert.Equal(t, "GET /api/orders", last["route"])
	assert.EqualValues(t, http.StatusAccepted, last["status"])
}

func TestMakeRouteFinder(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	mux := chi.NewRouter()
	mux.Get("/livez", noop)
	mux.Get("/api/orders/{ref}", noop)
	mux.Post("/api/orders/{ref}/proof", noop)
	find := MakeRouteFinder(mux)

	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/livez", "GET /livez"},
		{http.MethodGet, "/api/orders/ORD-1", "GET /api/orders/{ref}"},
		{http.MethodPost, "/api/orders/42/proof", "POST /api/orders/{ref}/proof"},
		{http.MethodDelete, "/api/orders/42", ""},
		{http.MethodGet, "/nope", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, find(httptest.NewRequest(tt.method, tt.path, nil)))
		})
	}
}

func TestMakeRouteFinder_UsesRouterContext(t *testing.T) {
	var seen string
	mux := chi.NewRouter()
	find := MakeRouteFinder(mux)
	mux.Get("/api/orders/{ref}", func(_ http.ResponseWriter, r *http.Request) {
		seen = find(r)
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/7", nil))
	assert.Equal(t, "GET /api/orders/{ref}", seen)
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Wrap(panicky, InjectLogger(zap.New(core)), Recovery())

	w := hit(h, "", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"kind":"infrastructure","message":"internal error"}`, w.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].ContextMap()["panic"])
}
