// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

// Package cmd implements the driftwatch command line: flag parsing, config
// and ack loading, and the exit-code contract (0 clean, 1 errors, 2
// regression found, 3 no data).
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perfscale/driftwatch/pkg/analyze"
	"github.com/perfscale/driftwatch/pkg/config"
	"github.com/perfscale/driftwatch/pkg/errors"
	"github.com/perfscale/driftwatch/pkg/logger/conf"
	"github.com/perfscale/driftwatch/pkg/logger/log"
	"github.com/perfscale/driftwatch/pkg/run"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitRegression = 2
	ExitNoData     = 3
)

const ackDir = "ack"

var (
	cmrFlag          bool
	hunterAnalyze    bool
	anomalyDetection bool

	configPath     string
	ackFiles       string
	noAck          bool
	saveDataPath   string
	saveOutputPath string
	outputFormat   string

	githubRepos   []string
	sippyPRSearch bool
	debugLogging  bool

	anomalyWindow     int
	minAnomalyPercent int

	uuidFlag     string
	baselineFlag string
	lookbackFlag string
	sinceFlag    string

	convertTinyURL bool
	collapseFlag   bool
	nodeCount      bool
	prAnalysis     bool

	lookbackSize   int
	esServer       string
	benchmarkIndex string
	metadataIndex  string
	inputVarsJSON  string
	displayFields  []string

	regressionFound bool
)

var rootCmd = &cobra.Command{
	Use:           "driftwatch",
	Short:         "Detect performance regressions in benchmark runs",
	Long: `Driftwatch compares time-ordered benchmark runs stored in an
OpenSearch/Elasticsearch index and reports statistically significant
performance shifts. Runs are matched by a metadata fingerprint declared
in the test configuration; change points are detected per metric and
filtered by direction, threshold and acknowledgements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE:       validateFlags,
	RunE:          runAnalysis,
}

// Execute runs the CLI and maps the outcome to the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		if errors.IsCode(err, errors.NoDataError) {
			return ExitNoData
		}
		return ExitError
	}
	if regressionFound {
		return ExitRegression
	}
	return ExitOK
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&cmrFlag, "cmr", false, "compare the newest run against the mean of the baseline runs")
	flags.BoolVar(&hunterAnalyze, "hunter-analyze", false, "run change-point detection over the full run history")
	flags.BoolVar(&anomalyDetection, "anomaly-detection", false, "run anomaly detection powered by isolation forest")

	flags.StringVar(&configPath, "config", "", "path to the configuration file")
	flags.StringVar(&ackFiles, "ack", "", "ack YAML files for known regressions, comma separated")
	flags.BoolVar(&noAck, "no-ack", false, "disable automatic ack file detection and loading")
	flags.StringVar(&saveDataPath, "save-data-path", "data.csv", "path to save the assembled dataset")
	flags.StringVar(&saveOutputPath, "save-output-path", "output.txt", "path to save output files with regressions")
	flags.StringVarP(&outputFormat, "output-format", "o", run.FormatText, "output format (json, text or junit)")

	flags.StringSliceVar(&githubRepos, "github-repos", nil, "GitHub repositories (owner/repo) to enrich change points with release and commit info")
	flags.BoolVar(&sippyPRSearch, "sippy-pr-search", false, "search for pull requests in sippy")

	flags.IntVar(&anomalyWindow, "anomaly-window", 0, "window size of the moving average for anomaly detection")
	flags.IntVar(&minAnomalyPercent, "min-anomaly-percent", 0, "minimum percentage deviation from the moving average to flag an anomaly")

	flags.StringVar(&uuidFlag, "uuid", "", "UUID to use as base for comparisons")
	flags.StringVar(&baselineFlag, "baseline", "", "baseline UUID(s) to compare against uuid")
	flags.StringVar(&lookbackFlag, "lookback", "", "get data from the last X days and Y hours, format XdYh")
	flags.StringVar(&sinceFlag, "since", "", "end date bounding the time range, format YYYY-MM-DD")
	flags.BoolVar(&convertTinyURL, "convert-tinyurl", false, "convert build URLs to tinyurl for better formatting")
	flags.BoolVar(&collapseFlag, "collapse", false, "only output change points with their previous and following runs")
	flags.BoolVar(&nodeCount, "node-count", false, "match any node iteration count")
	flags.BoolVar(&prAnalysis, "pr-analysis", false, "analyze pull-request runs against their periodic counterparts")
	flags.StringVar(&inputVarsJSON, "input-vars", "{}", `input variables for the config template, for example {"version": "4.18"}`)
	flags.StringSliceVar(&displayFields, "display", []string{"buildUrl"}, "metadata fields added as output columns")

	persistent := rootCmd.PersistentFlags()
	persistent.BoolVar(&debugLogging, "debug", false, "enable debug logging")
	persistent.IntVar(&lookbackSize, "lookback-size", 10000, "maximum number of runs to look back")
	persistent.StringVar(&esServer, "es-server", os.Getenv("ES_SERVER"), "endpoint where test data is stored, env ES_SERVER")
	persistent.StringVar(&benchmarkIndex, "benchmark-index", os.Getenv("es_benchmark_index"), "index where test data is stored, env es_benchmark_index")
	persistent.StringVar(&metadataIndex, "metadata-index", os.Getenv("es_metadata_index"), "index where metadata is stored, env es_metadata_index")

	_ = rootCmd.MarkFlagRequired("config")
}

func validateFlags(cmd *cobra.Command, _ []string) error {
	selected := 0
	for _, flag := range []bool{cmrFlag, hunterAnalyze, anomalyDetection} {
		if flag {
			selected++
		}
	}
	if selected != 1 {
		return errors.NewError().WithCode(errors.InvalidArgument).
			WithMessage("exactly one of --cmr, --hunter-analyze or --anomaly-detection must be set")
	}
	if !anomalyDetection &&
		(cmd.Flags().Changed("anomaly-window") || cmd.Flags().Changed("min-anomaly-percent")) {
		return errors.NewError().WithCode(errors.InvalidArgument).
			WithMessage("--anomaly-window and --min-anomaly-percent can only be used with --anomaly-detection")
	}
	switch outputFormat {
	case run.FormatJSON, run.FormatText, run.FormatJUnit:
	default:
		return errors.NewError().WithCode(errors.InvalidArgument).
			WithMessagef("unknown output format %q, choose json, text or junit", outputFormat)
	}
	if metadataIndex == "" || esServer == "" {
		return errors.NewError().WithCode(errors.InvalidArgument).
			WithMessage("metadata-index and es-server flags must be provided")
	}
	return nil
}

func runAnalysis(cmd *cobra.Command, _ []string) error {
	configureLogging()
	log.Info("starting driftwatch in command-line mode")

	inputVars, err := parseInputVars(inputVarsJSON)
	if err != nil {
		return err
	}
	if prAnalysis {
		if err := validatePRInputVars(inputVars); err != nil {
			return err
		}
	}
	cfg, err := config.Load(configPath, config.TemplateVars(inputVars))
	if err != nil {
		return err
	}
	acks, err := loadAcks(cfg)
	if err != nil {
		return err
	}
	opts, err := buildRunOptions(cfg, acks)
	if err != nil {
		return err
	}

	result, err := run.New(opts).Run(cmd.Context())
	if err != nil {
		return err
	}
	emit(result)
	regressionFound = result.Regression
	return nil
}

// configureLogging picks the level: debug wins, JSON output suppresses
// everything below errors so the rendered records stay parseable.
func configureLogging() {
	logConf := conf.DefaultConfig()
	if outputFormat == run.FormatJSON {
		logConf.Level = conf.ErrorLevel
	}
	if debugLogging {
		logConf.Level = conf.DebugLevel
	}
	_ = log.InitGlobalLogger(logConf)
}

func parseInputVars(raw string) (map[string]string, error) {
	decoded := map[string]interface{}{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, errors.NewError().WithCode(errors.InvalidArgument).
			WithMessage("input-vars must be a JSON object").WithError(err)
	}
	vars := make(map[string]string, len(decoded))
	for k, v := range decoded {
		vars[k] = fmt.Sprint(v)
	}
	return vars, nil
}

// validatePRInputVars checks that a pull-request analysis carries the
// variables its config template expands into the fingerprint.
func validatePRInputVars(vars map[string]string) error {
	var missing []string
	for _, name := range []string{"jobtype", "pull_number", "organization", "repository"} {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.NewError().WithCode(errors.InvalidArgument).
			WithMessagef("missing required input variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// loadAcks combines the auto-detected consolidated ack file, filtered to
// the first test's version and benchmark, with any manually given files.
func loadAcks(cfg *config.Config) ([]config.AckEntry, error) {
	if noAck {
		log.Info("ack loading disabled")
		return nil, nil
	}
	var maps []*config.AckMap
	if autoFile := config.AutoDetectAckFile(cfg, ackDir); autoFile != "" {
		m, err := config.LoadAck(autoFile)
		if err != nil {
			return nil, err
		}
		version, testType := cfg.Tests[0].AckScope()
		m = m.Filter(version, testType)
		log.Infof("auto-loaded ack file %s with %d matching entries", autoFile, len(m.Ack))
		maps = append(maps, m)
	}
	for _, file := range strings.Split(ackFiles, ",") {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		m, err := config.LoadAck(file)
		if err != nil {
			return nil, err
		}
		log.Infof("loaded ack file %s with %d entries", file, len(m.Ack))
		maps = append(maps, m)
	}
	merged := config.MergeAcks(maps...)
	return merged.Ack, nil
}

func selectedAlgorithm() string {
	switch {
	case cmrFlag:
		return analyze.AlgorithmCMR
	case anomalyDetection:
		return analyze.AlgorithmIsolationForest
	default:
		return analyze.AlgorithmEDivisive
	}
}

func buildRunOptions(cfg *config.Config, acks []config.AckEntry) (run.Options, error) {
	opts := run.Options{
		Config:            cfg,
		Server:            esServer,
		MetadataIndex:     metadataIndex,
		BenchmarkIndex:    benchmarkIndex,
		Algorithm:         selectedAlgorithm(),
		OutputFormat:      outputFormat,
		UUID:              uuidFlag,
		Baseline:          baselineFlag,
		MaxRows:           lookbackSize,
		NodeCount:         nodeCount,
		ConvertTinyURL:    convertTinyURL,
		Collapse:          collapseFlag,
		Display:           displayFields,
		GitHubRepos:       githubRepos,
		SippyPRSearch:     sippyPRSearch,
		AnomalyWindow:     anomalyWindow,
		MinAnomalyPercent: float64(minAnomalyPercent),
		Acks:              acks,
		SaveDataPath:      saveDataPath,
		SaveOutputPath:    saveOutputPath,
	}
	if lookbackFlag != "" {
		duration, err := config.ParseLookback(lookbackFlag)
		if err != nil {
			return run.Options{}, err
		}
		opts.Lookback = duration
	}
	if sinceFlag != "" {
		since, err := config.ParseSince(sinceFlag)
		if err != nil {
			return run.Options{}, err
		}
		opts.Since = &since
	}
	return opts, nil
}

// emit prints every test's rendered output and writes the per-test files.
func emit(result *run.Result) {
	keys := make([]string, 0, len(result.Outputs))
	for key := range result.Outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rendered := result.Outputs[key]
		if outputFormat != run.FormatJSON {
			header := result.Titles[key]
			if header == "" {
				header = key
			}
			fmt.Println(header)
			fmt.Println(strings.Repeat("=", len(header)))
		}
		fmt.Println(rendered)

		path := run.OutputPath(saveOutputPath, key, outputFormat)
		if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
			log.Errorf("couldn't write output file %s: %v", path, err)
		}
	}

	if result.Regression && outputFormat != run.FormatJSON {
		fmt.Println("Regression(s) found :")
		for _, summary := range result.Summaries {
			fmt.Println(strings.Repeat("-", 50))
			fmt.Printf("%-20s %s\n", "Previous Version:", summary.PrevVer)
			fmt.Printf("%-20s %s\n", "Bad Version:", summary.BadVer)
			if sippyPRSearch {
				fmt.Println("PR diff:")
				if len(summary.PRs) == 0 {
					fmt.Println("N/A - Payload tests have not completed yet")
				}
				for _, pr := range summary.PRs {
					fmt.Printf("- %s\n", pr)
				}
			}
			fmt.Println(strings.Repeat("-", 50))
		}
	}
}
