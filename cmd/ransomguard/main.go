// Command ransomguard runs the file-integrity monitor and ransomware
// rollback engine, or drives it one-shot from the command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fullexpi/ransomguard/internal/alert"
	"github.com/fullexpi/ransomguard/internal/audit"
	"github.com/fullexpi/ransomguard/internal/baseline"
	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/internal/engine"
	"github.com/fullexpi/ransomguard/internal/shadowstore"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// Version is set at build time via ldflags:
// -X main.Version=<tag>
var Version = "dev"

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "ransomguard",
		Short: "RansomGuard — host-based file integrity monitor and ransomware rollback",
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath, "config file path")

	root.AddCommand(
		runCmd(),
		baselineCmd(),
		restoreCmd(),
		statusCmd(),
		addTargetCmd(),
		removeTargetCmd(),
		testAlertCmd(),
		versionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildEngine wires an Engine from an already-loaded config, without
// starting it. `run`, `baseline`, `restore`, `add-target` and
// `remove-target` go through this.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	bs, err := baseline.Open(cfg.Baseline.DBPath, cfg.Baseline.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("opening baseline store: %w", err)
	}

	shadowDir := cfg.Baseline.ShadowDir
	if shadowDir == "" {
		shadowDir = shadowstore.DefaultDir(filepath.Dir(cfg.Baseline.DBPath))
	}
	ss := shadowstore.New(shadowDir)

	var auditSink audit.Sink
	if cfg.Core.SaveLogs && cfg.Audit.LogPath != "" {
		js, err := audit.NewJSONLSink(cfg.Audit.LogPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit sink: %w", err)
		}
		auditSink = js
	}

	fanout := alert.FromConfig(cfg.Alerts, cfg.Core.AlertEmail)

	return engine.New(engine.Options{
		Config:    cfg,
		Baseline:  bs,
		Shadow:    ss,
		AuditSink: auditSink,
		AlertSink: fanout,
	}), nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the monitor and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			})))

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			e, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			e.Subscribe(func(i models.Incident) {
				slog.Info("incident", "risk", i.Risk, "path", i.Path, "details", i.Details)
			})

			if _, err := e.ScanAndSaveBaseline(context.Background()); err != nil {
				return fmt.Errorf("initial baseline scan: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				slog.Info("shutting down...")
				cancel()
			}()

			hostname, _ := os.Hostname()
			slog.Info("ransomguard started", "version", Version, "hostname", hostname, "targets", len(cfg.Targets))

			return e.Start(ctx)
		},
	}
}

func baselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline",
		Short: "Hash and baseline every configured target, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			baselined, err := e.ScanAndSaveBaseline(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("baselined %d files across %d targets\n", len(baselined), len(cfg.Targets))
			return nil
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Force-restore every baselined file from its shadow copy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			fmt.Println("restoring all baselined files from shadow copies...")
			if err := e.ForceRestoreAll(context.Background()); err != nil {
				return err
			}
			fmt.Println("restore complete.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current configuration and recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("RansomGuard Status")
			fmt.Println("──────────────────")
			fmt.Printf("  Targets:          %d\n", len(cfg.Targets))
			for _, t := range cfg.Targets {
				fmt.Printf("    - %s\n", t)
			}
			fmt.Printf("  Auto-restore:     %v\n", cfg.Core.AutoRestore)
			fmt.Printf("  Save logs:        %v\n", cfg.Core.SaveLogs)
			fmt.Printf("  Alert email:      %s\n", cfg.Core.AlertEmail)
			fmt.Printf("  Cooldown:         %ds\n", cfg.Core.CooldownSeconds)
			fmt.Printf("  Entropy threshold:%.2f\n", cfg.Core.EntropyThreshold)
			fmt.Printf("  Worker pool size: %d\n", cfg.Core.WorkerPoolSize)
			return nil
		},
	}
}

func addTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-target <path>",
		Short: "Add a file or directory target and baseline it immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			if err := e.AddTarget(args[0]); err != nil {
				return err
			}
			fmt.Printf("added and baselined target: %s\n", args[0])
			return nil
		},
	}
}

func removeTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-target <path>",
		Short: "Stop monitoring a target and drop its baseline record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			e, err := buildEngine(cfg)
			if err != nil {
				return err
			}
			if err := e.RemoveTarget(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed target: %s\n", args[0])
			return nil
		},
	}
}

func testAlertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-alert",
		Short: "Send a test notification to every configured alert channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fanout := alert.FromConfig(cfg.Alerts, cfg.Core.AlertEmail)
			if len(fanout) == 0 {
				fmt.Println("no alert channels are enabled")
				return nil
			}
			fmt.Printf("testing %d alert channel(s)...\n", len(fanout))
			if err := fanout.Test(); err != nil {
				return err
			}
			fmt.Println("all channels OK")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("RansomGuard v%s\n", Version)
		},
	}
}
