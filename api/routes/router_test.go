package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	"github.com/brunovalongo/fretepay-backend/internal/gateway"
	gatewaywebhook "github.com/brunovalongo/fretepay-backend/internal/webhooks/gateway"
	"github.com/brunovalongo/fretepay-backend/pkg/config"
	"github.com/brunovalongo/fretepay-backend/pkg/enums"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, &okPinger{}, &okPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-FretePay-Env"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterReadyFailsWhenDependencyDown(t *testing.T) {
	router := newTestRouter(t, &okPinger{}, &downPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterMountsConsolidationRun(t *testing.T) {
	router := newTestRouter(t, &okPinger{}, &okPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/consolidations/run", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, &okPinger{}, &okPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func newTestRouter(t *testing.T, db, redis okOrDownPinger) http.Handler {
	t.Helper()
	cfg := &config.Config{App: config.AppConfig{Env: "test", Port: "0"}}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	return NewRouter(Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             db,
		Redis:          redis,
		Engine:         &stubEngine{},
		WebhookService: &stubWebhookService{},
		WebhookGuard:   &stubGuard{},
		Gateways:       &stubGateways{},
	})
}

type okOrDownPinger interface {
	Ping(ctx context.Context) error
}

type okPinger struct{}

func (p *okPinger) Ping(ctx context.Context) error { return nil }

type downPinger struct{}

func (p *downPinger) Ping(ctx context.Context) error {
	return context.DeadlineExceeded
}

type stubEngine struct{}

func (s *stubEngine) ProcessAllClients(ctx context.Context, trigger string) (*consolidation.RunResult, error) {
	return &consolidation.RunResult{}, nil
}

func (s *stubEngine) ProcessClient(ctx context.Context, clientID uuid.UUID) (*consolidation.RunResult, error) {
	return &consolidation.RunResult{}, nil
}

type stubWebhookService struct{}

func (s *stubWebhookService) HandleEvent(ctx context.Context, provider enums.GatewayKind, event *gatewaywebhook.Event) error {
	return nil
}

type stubGuard struct{}

func (s *stubGuard) CheckAndMark(ctx context.Context, provider, eventID string) (bool, error) {
	return false, nil
}

func (s *stubGuard) Release(ctx context.Context, provider, eventID string) error { return nil }

type stubGateways struct{}

func (s *stubGateways) Get(kind enums.GatewayKind) (gateway.Client, bool) { return nil, false }
