// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscale/driftwatch/pkg/analyze"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/run"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const testConfig = `
tests:
  - name: small-scale-cluster-density
    metadata:
      platform: AWS
      ocpVersion: {{ .version }}
    metrics:
      - name: podReadyLatency
        metric_of_interest: P99
`

func testDaemon(t *testing.T, runner func(ctx context.Context, opts run.Options) (*run.Result, error)) *Daemon {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "small-scale-cluster-density.yml"), []byte(testConfig), 0644))
	d := New(Options{ConfigDir: dir, Server: "http://localhost:9200", MaxRows: 100})
	if runner != nil {
		d.runner = runner
	}
	return d
}

func get(d *Daemon, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	d.engine.ServeHTTP(w, req)
	return w
}

func TestOptionsListsConfigs(t *testing.T) {
	d := testDaemon(t, nil)
	w := get(d, "/daemon/options")

	require.Equal(t, http.StatusOK, w.Code)
	var response map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []string{"small-scale-cluster-density"}, response["options"])
}

func TestOptionsMissingDirectory(t *testing.T) {
	d := New(Options{ConfigDir: "/nonexistent"})
	w := get(d, "/daemon/options")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangepointRendersRecords(t *testing.T) {
	var captured run.Options
	d := testDaemon(t, func(_ context.Context, opts run.Options) (*run.Result, error) {
		captured = opts
		return &run.Result{
			Outputs: map[string]string{
				"small-scale-cluster-density": `[{"uuid":"a","is_changepoint":false},{"uuid":"b","is_changepoint":true}]`,
			},
		}, nil
	})

	w := get(d, "/daemon/changepoint?version=4.18&uuid=abc&lookback=15d")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, analyze.AlgorithmEDivisive, captured.Algorithm)
	assert.Equal(t, run.FormatJSON, captured.OutputFormat)
	assert.Equal(t, "abc", captured.UUID)
	assert.Equal(t, 15*24*time.Hour, captured.Lookback)
	// the version query parameter feeds the config template
	require.Len(t, captured.Config.Tests, 1)
	version, _ := captured.Config.Tests[0].Metadata.Get("ocpVersion")
	assert.Equal(t, "4.18", version)

	var response map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response["small-scale-cluster-density"], 2)
}

func TestChangepointFiltersToChangepoints(t *testing.T) {
	d := testDaemon(t, func(_ context.Context, _ run.Options) (*run.Result, error) {
		return &run.Result{
			Outputs: map[string]string{
				"small-scale-cluster-density": `[{"uuid":"a","is_changepoint":false},{"uuid":"b","is_changepoint":true}]`,
			},
		}, nil
	})

	w := get(d, "/daemon/changepoint?filter_changepoints=true")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	records := response["small-scale-cluster-density"]
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0]["uuid"])
}

func TestChangepointUnknownTest(t *testing.T) {
	d := testDaemon(t, nil)
	w := get(d, "/daemon/changepoint?test_name=no-such-test")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangepointBadLookback(t *testing.T) {
	d := testDaemon(t, nil)
	w := get(d, "/daemon/changepoint?lookback=fortnight")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangepointNoData(t *testing.T) {
	d := testDaemon(t, func(_ context.Context, _ run.Options) (*run.Result, error) {
		return nil, errors.NewError().WithCode(errors.NoDataError).WithMessage("no data")
	})

	w := get(d, "/daemon/changepoint")
	require.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "No UUID with given metadata", response["Error"])
}

func TestAnomalyTuning(t *testing.T) {
	var captured run.Options
	d := testDaemon(t, func(_ context.Context, opts run.Options) (*run.Result, error) {
		captured = opts
		return &run.Result{Outputs: map[string]string{}}, nil
	})

	w := get(d, "/daemon/anomaly?anomaly_window=7&min_anomaly_percent=20")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, analyze.AlgorithmIsolationForest, captured.Algorithm)
	assert.Equal(t, 7, captured.AnomalyWindow)
	assert.InDelta(t, 20, captured.MinAnomalyPercent, 1e-9)
}

func TestAnomalyDefaults(t *testing.T) {
	var captured run.Options
	d := testDaemon(t, func(_ context.Context, opts run.Options) (*run.Result, error) {
		captured = opts
		return &run.Result{Outputs: map[string]string{}}, nil
	})

	w := get(d, "/daemon/anomaly")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, analyze.DefaultAnomalyWindow, captured.AnomalyWindow)
	assert.InDelta(t, analyze.DefaultMinAnomalyPercent, captured.MinAnomalyPercent, 1e-9)
}

func TestRequestIDAttached(t *testing.T) {
	d := testDaemon(t, nil)
	w := get(d, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}
