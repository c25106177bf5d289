package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunovalongo/fretepay-backend/internal/consolidation"
	pkgerrors "github.com/brunovalongo/fretepay-backend/pkg/errors"
	"github.com/brunovalongo/fretepay-backend/pkg/logger"
)

func TestRunConsolidation_AllClients(t *testing.T) {
	engine := &fakeConsolidationEngine{
		result: &consolidation.RunResult{ClientsProcessed: 3, PaymentsCreated: 5, DeliveriesIncluded: 12},
	}
	handler := RunConsolidation(engine, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidations/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, consolidation.TriggerManual, engine.trigger)
	assert.Equal(t, uuid.Nil, engine.clientID)

	var envelope struct {
		Data consolidation.RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, 3, envelope.Data.ClientsProcessed)
	assert.Equal(t, 5, envelope.Data.PaymentsCreated)
	assert.Equal(t, 12, envelope.Data.DeliveriesIncluded)
}

func TestRunConsolidation_SingleClient(t *testing.T) {
	clientID := uuid.New()
	engine := &fakeConsolidationEngine{
		result: &consolidation.RunResult{ClientsProcessed: 1, PaymentsCreated: 2},
	}
	handler := RunConsolidation(engine, testLogger())

	body := strings.NewReader(`{"client_id":"` + clientID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidations/run", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, clientID, engine.clientID)
	assert.Empty(t, engine.trigger)
}

func TestRunConsolidation_InvalidClientID(t *testing.T) {
	engine := &fakeConsolidationEngine{}
	handler := RunConsolidation(engine, testLogger())

	body := strings.NewReader(`{"client_id":"not-a-uuid"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidations/run", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Zero(t, engine.allCalls)
	assert.Zero(t, engine.clientCalls)
}

func TestRunConsolidation_EngineFailure(t *testing.T) {
	engine := &fakeConsolidationEngine{
		err: pkgerrors.New(pkgerrors.CodeDependency, "database unavailable"),
	}
	handler := RunConsolidation(engine, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/consolidations/run", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

type fakeConsolidationEngine struct {
	result      *consolidation.RunResult
	err         error
	trigger     string
	clientID    uuid.UUID
	allCalls    int
	clientCalls int
}

func (f *fakeConsolidationEngine) ProcessAllClients(ctx context.Context, trigger string) (*consolidation.RunResult, error) {
	f.allCalls++
	f.trigger = trigger
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeConsolidationEngine) ProcessClient(ctx context.Context, clientID uuid.UUID) (*consolidation.RunResult, error) {
	f.clientCalls++
	f.clientID = clientID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
