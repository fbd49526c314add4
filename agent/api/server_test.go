package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icu-agent/icu-agent/agent"
)

func testConfig(t *testing.T) agent.Config {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.Seed = 3
	cfg.Network = agent.NetworkConfig{HiddenSizes: []int{16, 16}, Dropout: 0}
	cfg.Training.EpisodesPerIteration = 4
	cfg.Training.Workers = 1
	cfg.Training.CheckpointDir = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T, publish bool) (*Server, *agent.Predictor) {
	t.Helper()
	cfg := testConfig(t)
	predictor := agent.NewPredictor()
	if publish {
		rng := agent.NewPartitionedRNG(cfg.Seed)
		policy := agent.NewPolicyNetwork(cfg.Network, rng.ForSubsystem(agent.SubsystemInit))
		value := agent.NewValueNetwork(cfg.Network, rng.ForSubsystem(agent.SubsystemInit))
		predictor.Publish(policy, value, agent.NewNormalizer(agent.DefaultNormalizationParams()), 1, "test")
	}
	trainer := agent.NewTrainer(cfg, nil, predictor, func(*rand.Rand) agent.PatientRecord {
		return agent.PatientRecord{Age: 70, HeartRate: 105, AdmissionType: agent.AdmissionEmergency}
	})
	return NewServer(predictor, trainer), predictor
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, false, resp["model_loaded"])
	assert.Equal(t, false, resp["training"])
}

func TestServer_PredictWithoutModelIs503(t *testing.T) {
	srv, _ := newTestServer(t, false)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/predict", map[string]any{"age": 50})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_PredictReturnsFullPayload(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/predict", map[string]any{
		"age": 80, "HeartRate": 112, "SysBP": 139, "SpO2": 96.5,
		"admission_type": "EMERGENCY", "gender": "M",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var pred agent.Prediction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pred))
	assert.Contains(t, agent.ActionNames(), pred.ActionName)
	require.Len(t, pred.Probabilities, agent.NumActions)
	var sum float64
	for _, v := range pred.Probabilities {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, pred.Probabilities[pred.ActionName], pred.Confidence, 1e-9)
	assert.Equal(t, 4.0, pred.RiskScore)
	assert.NotEmpty(t, pred.Reasoning)
}

func TestServer_PredictInvalidGenderIs400(t *testing.T) {
	srv, _ := newTestServer(t, true)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/predict", map[string]any{
		"age": 50, "gender": "X",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "gender", resp["field"])
}

func TestServer_PredictMalformedBodyIs400(t *testing.T) {
	srv, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_TrainRunsSynchronouslyAndPublishes(t *testing.T) {
	srv, predictor := newTestServer(t, false)
	w := doJSON(t, srv.Handler(), http.MethodPost, "/train", map[string]any{"epochs": 2})
	require.Equal(t, http.StatusOK, w.Code)

	var result agent.TrainResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.IterationsCompleted)
	assert.True(t, predictor.Loaded(), "a completed run must hand the model to serving")

	// Metrics reflect the run.
	w = doJSON(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status agent.TrainingStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 2, status.Iteration)
	assert.False(t, status.Training)
}

func TestServer_TrainValidatesEpochs(t *testing.T) {
	srv, _ := newTestServer(t, false)
	for _, body := range []map[string]any{
		{},
		{"epochs": 0},
		{"epochs": -3},
	} {
		w := doJSON(t, srv.Handler(), http.MethodPost, "/train", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %v", body)
	}
}
