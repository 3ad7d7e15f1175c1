// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package run coordinates the full analysis of every configured test:
// fingerprint lookup, table assembly, change-point detection, filtering,
// boundary refinement and output rendering.
package run

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perfscale/driftwatch/pkg/analyze"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/dataset"
	"github.com/perfscale/driftwatch/pkg/enrich"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/log"
	"github.com/perfscale/driftwatch/pkg/report"
	"github.com/perfscale/driftwatch/pkg/search"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatText  = "text"
	FormatJUnit = "junit"
)

const (
	pullJobType     = "pull"
	periodicJobType = "periodic"

	// pullParallelism bounds the pull and periodic analyses running side
	// by side.
	pullParallelism = 2

	// expansionLookback widens the look-back window when a change point
	// sits suspiciously close to its start.
	expansionLookback = 10 * 24 * time.Hour
	// expansionExtraRows raises the row cap on the widened retry.
	expansionExtraRows = 5
)

// Options configures a coordinator run.
type Options struct {
	Config         *config.Config
	Server         string
	MetadataIndex  string
	BenchmarkIndex string

	// Algorithm is one of the analyze package tags.
	Algorithm    string
	OutputFormat string

	// UUID pins the fingerprint to one run's metadata; Baseline compares
	// that run against an explicit set instead of the lookup.
	UUID     string
	Baseline string

	Lookback time.Duration
	Since    *time.Time
	MaxRows  int

	NodeCount      bool
	ConvertTinyURL bool
	Collapse       bool
	Display        []string

	GitHubRepos       []string
	SippyPRSearch     bool
	AnomalyWindow     int
	MinAnomalyPercent float64

	Acks []config.AckEntry

	SaveDataPath   string
	SaveOutputPath string
}

// Result aggregates every test's rendered output.
type Result struct {
	// Outputs maps test name to rendered output. The pull flavor of a
	// pull-request test is keyed with a _pull suffix and the averaged
	// periodic summary with a _periodic_avg suffix.
	Outputs map[string]string
	// Titles maps output keys to their display headers, carrying the
	// pull-request number on the pull flavor.
	Titles     map[string]string
	Regression bool
	Summaries  []report.RegressionSummary
}

// Coordinator drives the analysis pipeline.
type Coordinator struct {
	opts      Options
	github    *enrich.GitHubClient
	sippy     *enrich.SippyClient
	shortener *enrich.Shortener
	now       func() time.Time
}

// New builds a coordinator, wiring the enrichment clients the options ask
// for.
func New(opts Options) *Coordinator {
	c := &Coordinator{opts: opts, now: time.Now}
	if len(opts.GitHubRepos) > 0 {
		c.github = enrich.NewGitHubClient(opts.GitHubRepos, "")
	}
	if opts.SippyPRSearch {
		c.sippy = enrich.NewSippyClient()
	}
	if opts.ConvertTinyURL {
		c.shortener = enrich.NewShortener()
	}
	return c
}

// Run analyzes every configured test. Pull-request tests run twice, once
// as configured and once as the equivalent periodic job, in parallel.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if c.opts.Algorithm == "" {
		return nil, errors.NewError().WithCode(errors.InvalidArgument).
			WithMessage("no algorithm configured")
	}

	combined := &Result{Outputs: map[string]string{}, Titles: map[string]string{}}
	for i := range c.opts.Config.Tests {
		test := c.opts.Config.Tests[i].Clone()
		test.ApplyDefaults()

		if jobType, ok := test.Metadata.Get("jobType"); ok && jobType == pullJobType {
			if err := c.runPullPair(ctx, &test, combined); err != nil {
				return nil, err
			}
			continue
		}

		outcome, _, err := c.analyzeTest(ctx, &test, false)
		if err != nil {
			return nil, err
		}
		combined.absorb(outcome)
	}
	return combined, nil
}

// runPullPair analyzes the pull flavor and its periodic counterpart side
// by side and merges both outcomes.
func (c *Coordinator) runPullPair(ctx context.Context, test *config.Test, combined *Result) error {
	log.Infof("test %s targets a pull request, analyzing the periodic flavor alongside", test.Name)

	var pullOutcome, periodicOutcome *testOutcome
	var periodicData *testData
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pullParallelism)
	group.Go(func() error {
		outcome, _, err := c.analyzeTest(groupCtx, test, true)
		// a pull request with no finished runs yet leaves its slot empty
		if errors.IsCode(err, errors.NoDataError) {
			log.Warnf("no runs found for the pull flavor of %s yet", test.Name)
			return nil
		}
		pullOutcome = outcome
		return err
	})
	periodic := periodicVariant(*test)
	group.Go(func() error {
		outcome, data, err := c.analyzeTest(groupCtx, &periodic, false)
		periodicOutcome, periodicData = outcome, data
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}
	if pullOutcome != nil {
		combined.absorb(pullOutcome)
	}
	combined.absorb(periodicOutcome)

	// the averaged periodic runs give the pull request its comparison
	// baseline
	average, err := c.renderAverage(ctx, &periodic, periodicData)
	if err != nil {
		return err
	}
	combined.absorb(&testOutcome{
		Key:      test.Name + "_periodic_avg",
		Title:    test.Name + " | Average of above Periodic runs",
		Rendered: average,
	})
	return nil
}

// testOutcome is one test's analysis products.
type testOutcome struct {
	Key        string
	Title      string
	Rendered   string
	Regression bool
	Summaries  []report.RegressionSummary
}

func (r *Result) absorb(outcome *testOutcome) {
	r.Outputs[outcome.Key] = outcome.Rendered
	if outcome.Title != "" && outcome.Title != outcome.Key {
		r.Titles[outcome.Key] = outcome.Title
	}
	r.Regression = r.Regression || outcome.Regression
	r.Summaries = append(r.Summaries, outcome.Summaries...)
}

// testData is the assembled input of one analysis pass.
type testData struct {
	table *dataset.Table
	specs map[string]*config.Metric
}

func (c *Coordinator) analyzeTest(ctx context.Context, test *config.Test, pull bool) (*testOutcome, *testData, error) {
	log.Infof("the test %s has started", test.Name)

	metaClient, err := search.NewClient(search.Config{
		Server:       c.opts.Server,
		Index:        firstNonEmpty(test.MetadataIndex, c.opts.MetadataIndex),
		UUIDField:    test.UUIDField,
		VersionField: test.VersionField,
	})
	if err != nil {
		return nil, nil, err
	}

	window := c.window(ctx, test)
	data, err := c.fetchTable(ctx, metaClient, test, window)
	if err != nil {
		return nil, nil, err
	}

	if c.opts.SaveDataPath != "" {
		if err := writeSideData(data.table, sideDataPath(c.opts.SaveDataPath, test.Name)); err != nil {
			log.Errorf("couldn't save the dataset for %s: %v", test.Name, err)
		}
	}

	algorithm, err := analyze.New(c.opts.Algorithm, analyze.Options{
		AnomalyWindow:     c.opts.AnomalyWindow,
		MinAnomalyPercent: c.opts.MinAnomalyPercent,
	})
	if err != nil {
		return nil, nil, err
	}
	result, err := c.analyzeTable(algorithm, data, test)
	if err != nil {
		return nil, nil, err
	}

	if c.opts.Algorithm == analyze.AlgorithmEDivisive {
		result, data, err = c.refineBoundary(ctx, metaClient, test, window, algorithm, result, data)
		if err != nil {
			return nil, nil, err
		}
	}

	title := test.Name
	if pull {
		title = pullTitle(test)
	}
	records := report.BuildRecords(ctx, result, data.specs, report.Options{
		Collapse: c.opts.Collapse,
		GitHub:   contextProvider(c.github),
	})
	rendered, err := c.render(title, test, result.Table, data.specs, records)
	if err != nil {
		return nil, nil, err
	}

	// prow jobs always carry a machine-readable artifact alongside
	if prowJobID := os.Getenv("PROW_JOB_ID"); prowJobID != "" && c.opts.OutputFormat != FormatJSON {
		if out, err := report.MarshalRecords(records, test.UUIDField, test.VersionField); err == nil {
			artifact := prowArtifactPath(c.opts.SaveOutputPath, test.Name)
			if err := os.WriteFile(artifact, out, 0644); err != nil {
				log.Errorf("couldn't write the prow artifact %s: %v", artifact, err)
			}
		}
	}

	outcome := &testOutcome{Key: test.Name, Title: title, Rendered: rendered, Regression: result.Regression}
	if pull {
		outcome.Key = test.Name + "_pull"
	}
	if result.Regression {
		var differ report.PayloadDiffer
		if c.sippy != nil {
			differ = c.sippy
		}
		outcome.Summaries = report.BuildRegressionSummary(ctx, records, differ)
	}
	return outcome, data, nil
}

// analyzeTable runs the algorithm and the post-filter pipeline.
func (c *Coordinator) analyzeTable(algorithm analyze.Algorithm, data *testData, test *config.Test) (*analyze.Result, error) {
	result, err := algorithm.Analyze(data.table, data.specs)
	if err != nil {
		return nil, err
	}
	analyze.Filter(result, data.specs, analyze.FilterOptions{
		TestThreshold: test.Threshold,
		Acks:          c.opts.Acks,
	})
	return result, nil
}

// refineBoundary retries change points too close to the look-back start
// with a widened window. The retry wins only when it confirms the shift
// on strictly more data; otherwise the boundary candidate is discarded.
// Shifts too close to the series end are dropped either way.
func (c *Coordinator) refineBoundary(
	ctx context.Context,
	metaClient *search.Client,
	test *config.Test,
	window lookupWindow,
	algorithm analyze.Algorithm,
	result *analyze.Result,
	data *testData,
) (*analyze.Result, *testData, error) {
	if analyze.HasEarlyChangePoint(result.ChangePoints, analyze.DefaultEarlyWindow) && window.start != nil {
		wider := window
		start := window.start.Add(-expansionLookback)
		wider.start = &start
		wider.maxRows = result.Table.Len() + expansionExtraRows

		log.Infof("change point near the look-back boundary of %s, retrying with a wider window", test.Name)
		widerData, err := c.fetchTable(ctx, metaClient, test, wider)
		adopted := false
		if err == nil {
			widerResult, analyzeErr := c.analyzeTable(algorithm, widerData, test)
			if analyzeErr == nil && widerResult.Regression && widerData.table.Len() > result.Table.Len() {
				result, data = widerResult, widerData
				adopted = true
			}
		} else if !errors.IsCode(err, errors.NoDataError) {
			return nil, nil, err
		}
		if !adopted {
			analyze.DropEarly(result.ChangePoints, analyze.DefaultEarlyWindow)
		}
	}

	analyze.DropShortFuture(result.ChangePoints, result.Table.Len(), analyze.DefaultMinFuture)
	result.Regression = analyze.Count(result.ChangePoints) > 0
	return result, data, nil
}

// fetchTable resolves the fingerprint to runs and assembles their metric
// table.
func (c *Coordinator) fetchTable(ctx context.Context, metaClient *search.Client, test *config.Test, window lookupWindow) (*testData, error) {
	meta := test.Metadata.Clone()
	if c.opts.UUID != "" {
		document, err := metaClient.MetadataByUUID(ctx, c.opts.UUID)
		if err != nil {
			return nil, err
		}
		meta = metadataFromDocument(document, test.VersionField)
	}

	runs, err := metaClient.Lookup(ctx, meta, search.LookupOptions{
		LookbackStart:  window.start,
		LookbackEnd:    window.end,
		MaxRows:        window.maxRows,
		TimestampField: test.TimestampField,
		DisplayFields:  c.opts.Display,
	})
	if err != nil {
		return nil, err
	}

	uuids := make([]string, 0, len(runs))
	for _, run := range runs {
		uuids = append(uuids, run.UUID)
	}

	if c.opts.Baseline != "" {
		uuids = append(splitBaseline(c.opts.Baseline), c.opts.UUID)
		versions, err := metaClient.Versions(ctx, uuids, test.TimestampField)
		if err != nil {
			return nil, err
		}
		urls, err := metaClient.BuildURLs(ctx, uuids, test.TimestampField)
		if err != nil {
			return nil, err
		}
		runs = runs[:0]
		for _, uuid := range uuids {
			runs = append(runs, search.RunDescriptor{
				UUID:     uuid,
				Version:  versions[uuid],
				BuildURL: urls[uuid],
			})
		}
	} else if len(uuids) == 0 {
		log.Infof("no runs matched the metadata of %s", test.Name)
		return nil, noDataError(test.Name)
	}

	var prs map[string][]string
	if c.sippy != nil {
		prs = map[string][]string{}
		for _, run := range runs {
			prs[run.UUID] = c.sippy.PullRequests(ctx, run.Version)
		}
	}

	benchmarkIndex := firstNonEmpty(test.BenchmarkIndex, c.opts.BenchmarkIndex)
	benchClient := metaClient.ForIndex(benchmarkIndex)
	if shouldJobFilter(meta, benchmarkIndex, c.opts.Baseline, c.opts.NodeCount) {
		uuids, err = benchClient.JobFilter(ctx, uuids, test.TimestampField)
		if err != nil {
			return nil, err
		}
	}

	frames, specs, err := dataset.BuildFrames(ctx, benchClient, test, uuids)
	if err != nil {
		return nil, err
	}

	var shorten func(string) string
	if c.shortener != nil {
		shorten = c.shortener.Shorten
	}
	table := dataset.Assemble(frames, dataset.AssembleOptions{
		UUIDField:     test.UUIDField,
		Runs:          runs,
		DisplayFields: c.opts.Display,
		PRs:           prs,
		Shorten:       shorten,
	})
	if table.Empty() {
		return nil, noDataError(test.Name)
	}
	return &testData{table: table, specs: specs}, nil
}

type lookupWindow struct {
	start   *time.Time
	end     *time.Time
	maxRows int
}

// window bounds the lookup by the lookback and since options. A test
// pinned to a pull request never looks back past the PR's creation.
func (c *Coordinator) window(ctx context.Context, test *config.Test) lookupWindow {
	window := lookupWindow{maxRows: c.opts.MaxRows}
	reference := c.now().UTC()
	if c.opts.Since != nil {
		end := c.opts.Since.UTC()
		window.end = &end
		reference = end
	}
	if c.opts.Lookback > 0 {
		start := reference.Add(-c.opts.Lookback)
		window.start = &start
	}

	if jobType, ok := test.Metadata.Get("jobType"); ok && jobType == pullJobType && c.github != nil {
		if created, ok := c.prCreation(ctx, test.Metadata); ok {
			if window.start == nil || created.After(*window.start) {
				window.start = &created
			}
		}
	}
	return window
}

func (c *Coordinator) prCreation(ctx context.Context, meta config.Metadata) (time.Time, bool) {
	rawNumber, ok := meta.Get("pullNumber")
	if !ok || rawNumber == "" || rawNumber == "0" {
		return time.Time{}, false
	}
	organization, _ := meta.Get("organization")
	repository, _ := meta.Get("repository")
	if organization == "" || repository == "" {
		return time.Time{}, false
	}
	number, err := strconv.Atoi(rawNumber)
	if err != nil {
		return time.Time{}, false
	}
	return c.github.PRCreationDate(ctx, organization, repository, number)
}

func (c *Coordinator) render(name string, test *config.Test, table *dataset.Table, specs map[string]*config.Metric, records []report.Record) (string, error) {
	switch c.opts.OutputFormat {
	case FormatJSON:
		out, err := report.MarshalRecords(records, test.UUIDField, test.VersionField)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case FormatJUnit:
		return report.FormatJUnit(name, records, specs, table.Columns, test.UUIDField)
	default:
		var buf bytes.Buffer
		report.FormatText(&buf, records, table.Columns, table.DisplayColumns, test.UUIDField, test.VersionField)
		return buf.String(), nil
	}
}

// renderAverage folds the periodic table into its mean row and renders it
// the same way as the full table.
func (c *Coordinator) renderAverage(ctx context.Context, test *config.Test, data *testData) (string, error) {
	average := data.table.Average()
	records := report.BuildRecords(ctx, &analyze.Result{Table: average}, data.specs, report.Options{})
	return c.render(test.Name+"_periodic_avg", test, average, data.specs, records)
}

// contextProvider keeps a nil client from turning into a non-nil
// interface.
func contextProvider(client *enrich.GitHubClient) report.ChangeContextProvider {
	if client == nil {
		return nil
	}
	return client
}

func noDataError(testName string) error {
	return errors.NewError().WithCode(errors.NoDataError).
		WithMessagef("no data found for test %s", testName)
}

func writeSideData(table *dataset.Table, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return table.WriteCSV(file)
}
