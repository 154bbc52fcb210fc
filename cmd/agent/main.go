package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"crypto-trading-agent/internal/engine"
	"crypto-trading-agent/internal/logger"
	"crypto-trading-agent/internal/trace"
	"crypto-trading-agent/internal/web"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "agent",
		Short: "Crypto paper-trading agent with LLM-advised decision pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeSystem()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")

	root.AddCommand(newInitCmd(), newRunCmd(), newStatusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	var nav float64
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the database schema and starting capital",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := loadConfigAndStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SetConfigFloat(ctx, "initial_nav", nav); err != nil {
				return fmt.Errorf("set initial NAV: %w", err)
			}
			if err := db.SetConfigFloat(ctx, "peak_nav", nav); err != nil {
				return fmt.Errorf("set peak NAV: %w", err)
			}
			logger.Info(ctx, "agent initialized", "initial_nav", nav)
			fmt.Printf("initialized with NAV %.2f\n", nav)
			return nil
		},
	}
	cmd.Flags().Float64Var(&nav, "nav", 10000, "starting capital in USD")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the trading daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, db, err := loadConfigAndStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			defer func() {
				if err := trace.Shutdown(context.Background()); err != nil {
					logger.Warn(ctx, "tracer shutdown failed", "error", err.Error())
				}
			}()

			eng, err := buildEngine(ctx, cfg, db)
			if err != nil {
				return err
			}

			if cfg.Web.Enabled {
				srv := web.NewServer(db, cfg)
				go func() {
					logger.Info(ctx, "dashboard API listening", "addr", cfg.Web.Addr)
					if err := srv.Run(cfg.Web.Addr); err != nil {
						logger.ErrorWithErr(ctx, "dashboard API stopped", err)
					}
				}()
			}

			interval := time.Duration(cfg.CycleSeconds) * time.Second
			if err := engine.Run(ctx, eng, interval); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print current NAV, positions and recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := loadConfigAndStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			nav, err := db.LatestNAV(ctx)
			if err != nil {
				return err
			}
			positions, err := db.GetPositions(ctx)
			if err != nil {
				return err
			}
			trades, err := db.ListTrades(ctx, 10)
			if err != nil {
				return err
			}

			out := map[string]any{
				"nav":           nav,
				"positions":     positions,
				"recent_trades": trades,
			}
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
}
