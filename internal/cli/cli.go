// ============================================================================
// Pool Manager CLI
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree for cmd/poolmanagerctl, an operator tool
//          over internal/manager.Manager. Not the HTTP front-end named in
//          spec.md §6 (still out of scope) — a thin wrapper for manual
//          operation and integration testing.
//
// Command Structure:
//   poolmanagerctl run    --config pools.yaml
//   poolmanagerctl submit --pool P --file task.json
//   poolmanagerctl status --config pools.yaml
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chuliyu/poolmanager/internal/dispatcher"
	"github.com/chuliyu/poolmanager/internal/manager"
	"github.com/chuliyu/poolmanager/internal/metrics"
	"github.com/chuliyu/poolmanager/pkg/protocol"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration schema of spec.md §6, plus the
// metrics server wiring this expansion adds.
type Config struct {
	Pools   []PoolConfigYAML `yaml:"pools"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
	StatsIntervalMs int `yaml:"stats_interval_ms"`
}

// PoolConfigYAML mirrors spec.md §6's pool configuration schema, with the
// two defaulted fields applied in normalize().
type PoolConfigYAML struct {
	PoolName          string `yaml:"poolName"`
	WorkerScript      string `yaml:"workerScript"`
	WorkerCount       *int   `yaml:"workerCount"`
	WorkerMemoryLimit *int   `yaml:"workerMemoryLimit"`
}

func (p PoolConfigYAML) normalize() dispatcher.PoolConfig {
	count := 1
	if p.WorkerCount != nil {
		count = *p.WorkerCount
	}
	memLimit := protocol.DefaultOneShotMemoryLimitMB
	if p.WorkerMemoryLimit != nil {
		memLimit = *p.WorkerMemoryLimit
	}
	return dispatcher.PoolConfig{
		PoolName:          p.PoolName,
		WorkerScript:      p.WorkerScript,
		WorkerCount:       count,
		WorkerMemoryLimit: memLimit,
	}
}

var configFile string

// BuildCLI constructs the poolmanagerctl root command.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "poolmanagerctl",
		Short: "Operator CLI for the worker pool manager",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "pools.yaml", "pool config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Initialize pools from config and block until a shutdown signal arrives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem()
		},
	}
}

func runSystem() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	mgr := newManager(cfg)
	defer mgr.Close()

	if err := mgr.InitPools(normalizePools(cfg.Pools)); err != nil {
		return fmt.Errorf("init pools: %w", err)
	}

	if cfg.Metrics.Enabled {
		port := cfg.Metrics.Port
		if port == 0 {
			port = 9090
		}
		go func() {
			if err := metrics.StartServer(port); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	fmt.Println("pool manager started")
	mgr.WaitForShutdownSignal(context.Background())
	fmt.Println("pool manager stopped")
	return nil
}

func buildSubmitCommand() *cobra.Command {
	var poolName string
	var taskFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one task to a pool and print the reply",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitTask(poolName, taskFile)
		},
	}
	cmd.Flags().StringVar(&poolName, "pool", "", "target pool name")
	cmd.Flags().StringVarP(&taskFile, "file", "f", "", "JSON file containing the task payload")
	cmd.MarkFlagRequired("pool")
	cmd.MarkFlagRequired("file")
	return cmd
}

func submitTask(poolName, taskFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(taskFile)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}

	mgr := newManager(cfg)
	defer mgr.Close()

	if err := mgr.InitPools(normalizePools(cfg.Pools)); err != nil {
		return fmt.Errorf("init pools: %w", err)
	}

	replyCh := make(chan protocol.Reply, 1)
	result := mgr.SubmitPoolTask(data, poolName, func(reply protocol.Reply) {
		replyCh <- reply
	})
	if !result.OK {
		return fmt.Errorf("submit rejected: %s", result.Message)
	}

	select {
	case reply := <-replyCh:
		out, _ := json.MarshalIndent(reply, "", "  ")
		fmt.Println(string(out))
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for reply")
	}
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Initialize pools from config, print stats once, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	mgr := newManager(cfg)
	defer mgr.Close()

	if err := mgr.InitPools(normalizePools(cfg.Pools)); err != nil {
		return fmt.Errorf("init pools: %w", err)
	}

	time.Sleep(200 * time.Millisecond) // let INIT_DONE replies settle
	stats := mgr.GetStats("")
	out, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(out))
	return nil
}

func newManager(cfg *Config) *manager.Manager {
	interval := protocol.DefaultStatsInterval
	if cfg.StatsIntervalMs > 0 {
		interval = time.Duration(cfg.StatsIntervalMs) * time.Millisecond
	}
	return manager.New(manager.WithStatsInterval(interval))
}

func normalizePools(pools []PoolConfigYAML) []dispatcher.PoolConfig {
	out := make([]dispatcher.PoolConfig, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.normalize())
	}
	return out
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &cfg, nil
}
