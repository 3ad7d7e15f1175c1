// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/perfscale/driftwatch/pkg/server"
)

var (
	daemonPort      int
	daemonConfigDir string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Serve the analysis pipeline over HTTP",
	Long: `Daemon mode serves change-point and anomaly analyses over HTTP.
Tests are selected by name from the configuration directory and results
are always rendered as JSON.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().IntVar(&daemonPort, "port", 8000, "port to listen on")
	daemonCmd.Flags().StringVar(&daemonConfigDir, "config-dir", "configs", "directory holding the test configuration files")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	configureLogging()
	d := server.New(server.Options{
		Port:           daemonPort,
		ConfigDir:      daemonConfigDir,
		Server:         esServer,
		MetadataIndex:  metadataIndex,
		BenchmarkIndex: benchmarkIndex,
		MaxRows:        lookbackSize,
	})
	return d.Run()
}
