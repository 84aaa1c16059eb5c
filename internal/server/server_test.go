package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelfix/internal/cfg"
	"labelfix/internal/pipeline"
	"labelfix/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	settings := cfg.Settings{
		ModelName:            "logistic",
		ModelParams:          map[string]float64{"max_iter": 300, "learning_rate": 0.5},
		ConfidenceThreshold:  0.7,
		AnomalyContamination: 0.1,
		ConfidenceWeight:     0.6,
		AnomalyWeight:        0.4,
		RejectThreshold:      0.8,
		TestSize:             0.2,
		ExportDir:            t.TempDir(),
		ListenPort:           8080,
		HTTPTimeout:          5 * time.Second,
	}
	engine := pipeline.New(st, settings, nil)
	srv := New(engine, st, settings.ListenPort)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func writeDatasetCSV(t *testing.T) string {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	var b strings.Builder
	b.WriteString("x,y,label\n")
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "%f,%f,0\n", rng.Float64(), rng.Float64())
		fmt.Fprintf(&b, "%f,%f,1\n", 5+rng.Float64(), 5+rng.Float64())
	}
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDatasetLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	csvPath := writeDatasetCSV(t)

	resp := postJSON(t, ts.URL+"/api/datasets", map[string]string{"name": "toy", "source": csvPath})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var dataset store.Dataset
	decodeInto(t, resp, &dataset)
	assert.Equal(t, 60, dataset.SampleCount)

	resp, err := http.Get(fmt.Sprintf("%s/api/datasets/%d", ts.URL, dataset.ID))
	require.NoError(t, err)
	var got store.Dataset
	decodeInto(t, resp, &got)
	assert.Equal(t, "toy", got.Name)

	resp, err = http.Get(ts.URL + "/api/datasets/999")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/datasets", map[string]string{"name": "", "source": ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDetectionOverrides(t *testing.T) {
	ts, _ := newTestServer(t)
	csvPath := writeDatasetCSV(t)

	resp := postJSON(t, ts.URL+"/api/datasets", map[string]string{"name": "toy", "source": csvPath})
	var dataset store.Dataset
	decodeInto(t, resp, &dataset)
	detectURL := fmt.Sprintf("%s/api/datasets/%d/detect", ts.URL, dataset.ID)

	resp = postJSON(t, detectURL, map[string]any{"iteration": 0, "max_samples": 25})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report pipeline.DetectionReport
	decodeInto(t, resp, &report)
	assert.Equal(t, 25, report.TotalAnalyzed)

	resp = postJSON(t, detectURL, map[string]any{
		"iteration":        0,
		"priority_weights": map[string]float64{"confidence": 0.9, "anomaly": 0.4},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "weights must sum to 1.0")
}

func TestDetectionAndReviewFlow(t *testing.T) {
	ts, st := newTestServer(t)
	csvPath := writeDatasetCSV(t)

	resp := postJSON(t, ts.URL+"/api/datasets", map[string]string{"name": "toy", "source": csvPath})
	var dataset store.Dataset
	decodeInto(t, resp, &dataset)
	base := fmt.Sprintf("%s/api/datasets/%d", ts.URL, dataset.ID)

	resp = postJSON(t, base+"/baseline", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Second baseline is a validation error.
	resp = postJSON(t, base+"/baseline", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, base+"/detect", map[string]int{"iteration": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detReport pipeline.DetectionReport
	decodeInto(t, resp, &detReport)
	assert.Equal(t, 60, detReport.TotalAnalyzed)

	// Seed a deterministic detection so review always has material.
	samples, err := st.SamplesByDataset(dataset.ID)
	require.NoError(t, err)
	require.NoError(t, st.ReplaceDetections(dataset.ID, 1, []*store.Detection{{
		DatasetID: dataset.ID, SampleID: samples[0].ID, Iteration: 1,
		PredictedLabel: 1 - samples[0].CurrentLabel, Priority: 0.9,
		Action: "REVIEW", Reason: "Model confident (90%) in different label",
	}}))

	resp = postJSON(t, base+"/suggestions", map[string]int{"iteration": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created []*store.Suggestion
	decodeInto(t, resp, &created)
	require.Len(t, created, 1)

	reviewURL := fmt.Sprintf("%s/api/suggestions/%d/review", ts.URL, created[0].ID)
	resp = postJSON(t, reviewURL, map[string]any{"status": "modified"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "modified without custom_label")

	resp = postJSON(t, reviewURL, map[string]any{"status": "accepted", "notes": "agree"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reviewed store.Suggestion
	decodeInto(t, resp, &reviewed)
	assert.Equal(t, store.StatusAccepted, reviewed.Status)

	// Corrections are scoped to the reviewed iteration.
	resp = postJSON(t, base+"/corrections", map[string]int{"iteration": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var corrReport pipeline.CorrectionReport
	decodeInto(t, resp, &corrReport)
	assert.Equal(t, 1, corrReport.Applied)

	resp = postJSON(t, base+"/retrain", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var retrain pipeline.RetrainReport
	decodeInto(t, resp, &retrain)
	assert.Equal(t, 1, retrain.Iteration)

	resp, err = http.Get(base + "/models")
	require.NoError(t, err)
	var cmp pipeline.ModelComparison
	decodeInto(t, resp, &cmp)
	require.NotNil(t, cmp.Baseline)
	assert.Len(t, cmp.Models, 2)

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var stats map[string]json.RawMessage
	decodeInto(t, resp, &stats)
	for _, key := range []string{"detection", "suggestions", "feedback", "corrections"} {
		assert.Contains(t, stats, key)
	}

	resp = postJSON(t, base+"/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var exported map[string]string
	decodeInto(t, resp, &exported)
	_, err = os.Stat(exported["path"])
	assert.NoError(t, err)
}

func TestProgressWebsocket(t *testing.T) {
	ts, _ := newTestServer(t)
	csvPath := writeDatasetCSV(t)

	resp := postJSON(t, ts.URL+"/api/datasets", map[string]string{"name": "toy", "source": csvPath})
	var dataset store.Dataset
	decodeInto(t, resp, &dataset)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	detectURL := fmt.Sprintf("%s/api/datasets/%d/detect", ts.URL, dataset.ID)
	resp = postJSON(t, detectURL, map[string]int{"iteration": 0})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev ProgressEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "detection", ev.Stage)
	assert.GreaterOrEqual(t, ev.Pct, 0.0)
}
