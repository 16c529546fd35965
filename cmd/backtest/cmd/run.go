package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantlab/backtest/backtest"
	"github.com/quantlab/backtest/broker/sim"
	"github.com/quantlab/backtest/config"
	"github.com/quantlab/backtest/journal"
	"github.com/quantlab/backtest/strategy"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest from a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		cfg, err := config.LoadFromFile(runConfigPath)
		if err != nil {
			return err
		}

		history, err := backtest.LoadHistory(cfg, log)
		if err != nil {
			return err
		}

		j, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer j.Close()

		exec, err := sim.New(cfg.Universe(), cfg.Execution, log)
		if err != nil {
			return err
		}

		var active []backtest.Active
		for _, sc := range cfg.Strategies {
			impl, err := strategy.ByName(sc.Kind, strategy.Params{
				Symbols:        sc.Symbols,
				Weights:        sc.Weights,
				FastPeriod:     sc.FastPeriod,
				SlowPeriod:     sc.SlowPeriod,
				RebalanceEvery: sc.RebalanceEvery,
			})
			if err != nil {
				return fmt.Errorf("strategy %s: %w", sc.ID, err)
			}
			active = append(active, backtest.Active{ID: sc.ID, Impl: impl})
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := backtest.NewRunner(cfg, history, exec, active, j, log)
		res, err := runner.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("run      %s\n", res.RunID)
		fmt.Printf("steps    %d\n", res.Steps)
		fmt.Printf("trades   %d (%d rejections)\n", res.Trades, res.Rejections)
		fmt.Printf("nav      %s -> %s (%.4f%%)\n", res.StartNAV, res.EndNAV, res.Return*100)
		fmt.Printf("risk     %s\n", res.HaltState)
		return nil
	},
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Run.JournalType {
	case "sqlite":
		return journal.NewSQLite(cfg.Run.JournalPath)
	case "csv":
		return journal.NewCSV(cfg.Run.JournalPath)
	default:
		return journal.NewMemory(), nil
	}
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.AddCommand(runCmd)
}
