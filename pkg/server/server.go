// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package server exposes the analysis pipeline as a small HTTP daemon.
// Tests are selected by name from a directory of configuration files and
// always render JSON.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/perfscale/driftwatch/pkg/analyze"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
	"github.com/perfscale/driftwatch/pkg/run"
)

const (
	defaultTestName = "small-scale-cluster-density"
	defaultVersion  = "4.17"

	requestIDHeader = "X-Request-Id"
)

// Options configures the daemon.
type Options struct {
	Port      int
	ConfigDir string

	// Server, MetadataIndex and BenchmarkIndex are the index defaults
	// applied to every request; per-test settings in the loaded config
	// still win.
	Server         string
	MetadataIndex  string
	BenchmarkIndex string
	MaxRows        int
}

// Daemon serves the changepoint and anomaly endpoints.
type Daemon struct {
	opts   Options
	engine *gin.Engine
	// runner executes one coordinator run; swapped in tests.
	runner func(ctx context.Context, opts run.Options) (*run.Result, error)
}

// New builds the daemon and its routes.
func New(opts Options) *Daemon {
	d := &Daemon{
		opts: opts,
		runner: func(ctx context.Context, runOpts run.Options) (*run.Result, error) {
			return run.New(runOpts).Run(ctx)
		},
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), handleRequestID())

	group := engine.Group("/daemon")
	group.GET("/options", d.handleOptions)
	group.GET("/changepoint", d.handleChangepoint)
	group.GET("/anomaly", d.handleAnomaly)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	d.engine = engine
	return d
}

// Run blocks serving HTTP on the configured port.
func (d *Daemon) Run() error {
	log.Infof("daemon listening on port %d", d.opts.Port)
	return d.engine.Run(fmt.Sprintf(":%d", d.opts.Port))
}

// handleRequestID tags every request so log lines can be correlated.
func handleRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// handleOptions lists the test names available in the config directory.
func (d *Daemon) handleOptions(c *gin.Context) {
	entries, err := os.ReadDir(d.opts.ConfigDir)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "config directory not found"})
		return
	}
	options := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		options = append(options, strings.TrimSuffix(name, ext))
	}
	c.JSON(http.StatusOK, gin.H{"options": options})
}

func (d *Daemon) handleChangepoint(c *gin.Context) {
	filter := c.Query("filter_changepoints") == "true"
	d.analyze(c, run.Options{Algorithm: analyze.AlgorithmEDivisive}, filter)
}

func (d *Daemon) handleAnomaly(c *gin.Context) {
	window, err := intQuery(c, "anomaly_window", analyze.DefaultAnomalyWindow)
	if err != nil {
		return
	}
	minPercent, err := intQuery(c, "min_anomaly_percent", analyze.DefaultMinAnomalyPercent)
	if err != nil {
		return
	}
	filter := c.Query("filter_points") == "true"
	d.analyze(c, run.Options{
		Algorithm:         analyze.AlgorithmIsolationForest,
		AnomalyWindow:     window,
		MinAnomalyPercent: float64(minPercent),
	}, filter)
}

// analyze loads the requested test config, runs the coordinator and
// responds with the per-test record lists.
func (d *Daemon) analyze(c *gin.Context, runOpts run.Options, filterChangepoints bool) {
	testName := c.DefaultQuery("test_name", defaultTestName)
	version := c.DefaultQuery("version", defaultVersion)

	path, ok := d.configPath(testName)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": fmt.Sprintf("no config found for test %s", testName)})
		return
	}
	cfg, err := config.Load(path, config.TemplateVars(map[string]string{"version": version}))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	runOpts.Config = cfg
	runOpts.Server = d.opts.Server
	runOpts.MetadataIndex = d.opts.MetadataIndex
	runOpts.BenchmarkIndex = d.opts.BenchmarkIndex
	runOpts.MaxRows = d.opts.MaxRows
	runOpts.OutputFormat = run.FormatJSON
	runOpts.UUID = c.Query("uuid")
	runOpts.Baseline = c.Query("baseline")
	if lookback := c.Query("lookback"); lookback != "" {
		duration, err := config.ParseLookback(lookback)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		runOpts.Lookback = duration
	}

	result, err := d.runner(c.Request.Context(), runOpts)
	if err != nil {
		if errors.IsCode(err, errors.NoDataError) {
			c.JSON(http.StatusOK, gin.H{"Error": "No UUID with given metadata"})
			return
		}
		log.Errorf("analysis of %s failed: %v", testName, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	response := map[string][]map[string]interface{}{}
	for key, rendered := range result.Outputs {
		var records []map[string]interface{}
		if err := json.Unmarshal([]byte(rendered), &records); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		if filterChangepoints {
			kept := []map[string]interface{}{}
			for _, record := range records {
				if changed, ok := record["is_changepoint"].(bool); ok && changed {
					kept = append(kept, record)
				}
			}
			records = kept
		}
		response[key] = records
	}
	c.JSON(http.StatusOK, response)
}

// configPath tries both YAML extensions for the test's config file.
func (d *Daemon) configPath(testName string) (string, bool) {
	for _, ext := range []string{".yml", ".yaml"} {
		path := filepath.Join(d.opts.ConfigDir, testName+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": fmt.Sprintf("%s must be an integer", name)})
		return 0, err
	}
	return value, nil
}
