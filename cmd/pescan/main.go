// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pescan-dev/pescan/pkg/detect"
	"github.com/pescan-dev/pescan/pkg/logging"
	"github.com/pescan-dev/pescan/pkg/scanpass"
	"github.com/pescan-dev/pescan/pkg/types"
	"github.com/pescan-dev/pescan/services/orchestrator"
)

var cfgFile string

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func loadConfig() (orchestrator.Config, error) {
	var cfg orchestrator.Config
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pescan")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pescan")
	}
	viper.SetEnvPrefix("pescan")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan orchestrator, consuming process IDs from the configured topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			zl, err := newLogger(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer zl.Sync()
			logger := logging.New(zl)

			svc, err := orchestrator.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("new orchestrator: %w", err)
			}
			return svc.Start()
		},
	}
}

func newScanCmd() *cobra.Command {
	var filterMode, system32, sysWow64, logLevel, yaraRulesPath string
	var enableFuzzy, checkSignatures bool

	cmd := &cobra.Command{
		Use:   "scan <pid>",
		Short: "Scan one running process and print the JSON report to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid64, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q: %w", args[0], err)
			}

			zl, err := newLogger(logLevel)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer zl.Sync()

			var filter types.FilterMode
			switch filterMode {
			case "unfiltered":
				filter = types.FilterUnfiltered
			case "listed":
				filter = types.FilterListed
			case "unfiltered_sys_all":
				filter = types.FilterUnfilteredSysAll
			default:
				filter = types.FilterCleanSysFiltered
			}

			var yaraScanner *detect.YaraScanner
			if yaraRulesPath != "" {
				yaraScanner, err = detect.NewYaraScanner(yaraRulesPath)
				if err != nil {
					return fmt.Errorf("compile yara rules: %w", err)
				}
			}
			var fuzzyHash *detect.FuzzyHash
			if enableFuzzy {
				fuzzyHash = detect.NewFuzzyHash()
			}

			res, err := scanpass.Run(context.Background(), uint32(pid64), scanpass.Options{
				Filter:          filter,
				System32:        system32,
				SysWow64:        sysWow64,
				Yara:            yaraScanner,
				Fuzzy:           fuzzyHash,
				CheckSignatures: checkSignatures,
			}, zl.Sugar())
			if err != nil {
				return err
			}
			defer os.Remove(res.File.Name())
			defer res.File.Close()

			_, err = io.Copy(cmd.OutOrStdout(), res.File)
			return err
		},
	}

	cmd.Flags().StringVar(&filterMode, "filter", "clean_sys_filtered", "uncovered-hook filter: unfiltered, listed, clean_sys_filtered, unfiltered_sys_all")
	cmd.Flags().StringVar(&system32, "system32", `C:\Windows\System32`, "path to the target's System32 directory")
	cmd.Flags().StringVar(&sysWow64, "syswow64", `C:\Windows\SysWOW64`, "path to the target's SysWOW64 directory")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().StringVar(&yaraRulesPath, "yara-rules", "", "path to a YARA rule file to scan modules and shellcode candidates against")
	cmd.Flags().BoolVar(&enableFuzzy, "fuzzy-hash", false, "compute an ssdeep fuzzy hash of every scanned module")
	cmd.Flags().BoolVar(&checkSignatures, "check-signatures", false, "check each loaded module's Authenticode signature")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("pescan 0.1.0")
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pescan",
		Short: "Live Windows process scanner for IAT hooking and suspicious threads",
		Long:  "pescan inspects a running process's import address table and thread call stacks for signs of in-memory tampering.",
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pescan.yaml)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
