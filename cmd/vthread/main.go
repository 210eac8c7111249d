// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command vthread exercises the vthread scheduler with stress workloads.
package main

import (
	"fmt"
	"os"

	"code.hybscloud.com/vthread"
	"code.hybscloud.com/vthread/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the state shared by all subcommands.
type app struct {
	configPath  string
	parallelism int
	logLevel    string

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "vthread",
		Short: "Virtual thread scheduler stress tool",
		Long: `vthread runs workloads of virtual threads on a pool of carrier threads.

Virtual threads park, unpark, and yield cooperatively; the workloads report
how long the scheduler took to drive them to completion.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().IntVar(&a.parallelism, "parallelism", 0, "Number of carrier threads (0 uses GOMAXPROCS)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newVersionCmd(),
		newStressCmd(a),
	)
	return rootCmd
}

// setup loads configuration, applies flags over it, and installs the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("parallelism") {
		cfg.Scheduler.Parallelism = a.parallelism
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Logging.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	a.cfg = cfg
	a.log = log
	vthread.SetLogger(log)
	return nil
}

func (a *app) newScheduler() *vthread.Scheduler {
	return vthread.NewScheduler(
		vthread.WithName(a.cfg.Scheduler.Name),
		vthread.WithParallelism(a.cfg.Scheduler.Parallelism),
		vthread.WithLogger(a.log),
	)
}
