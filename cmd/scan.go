package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the latest block once without sending transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Execution.DryRun = true
		if err := cfg.ValidateConfig(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := dial(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		b, err := bot.Build(cfg, client, metrics.New(prometheus.NewRegistry(), cfg.Metrics.Namespace), log)
		if err != nil {
			return err
		}

		header, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to get latest header: %w", err)
		}

		result := b.RunCycle(ctx, header)
		log.Info("Scan complete",
			zap.Uint64("block", result.Block),
			zap.Int("pairs", result.Scanned),
			zap.Int("failed", result.Failed),
			zap.Int("selected", len(result.Selected)))
		for _, opp := range result.Selected {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s tier=%d %s->%s in=%s out=%s profit=%s\n",
				opp.Strategy, opp.Pair, opp.Tier, opp.VenueFrom, opp.VenueTo,
				opp.InputAmount, opp.OutputReceived, opp.Profit)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
