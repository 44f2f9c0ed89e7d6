package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"
	"github.com/michaelpento.lv/flasharb/utils/metrics"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start scanning new blocks for arbitrage",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// reject bad strategies and pairs before dialing the node
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

		m := metrics.NewDefault(cfg.Metrics.Namespace)
		b, err := bot.Build(cfg, client, m, log)
		if err != nil {
			return err
		}

		if cfg.Metrics.Enabled {
			srv := serveMetrics(cfg.Metrics.ListenAddress, log)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := b.Run(ctx); err != nil {
			return fmt.Errorf("bot stopped: %w", err)
		}
		log.Info("Shut down gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

// dial connects to the websocket endpoint and checks it serves the configured chain
func dial(ctx context.Context, cfg *config.Config) (*ethclient.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.Network.NetworkTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.Network.WSEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if !chainID.IsUint64() || chainID.Uint64() != cfg.Network.ChainID {
		client.Close()
		return nil, &config.Error{
			Field:  "network.chain_id",
			Reason: fmt.Sprintf("node serves chain %s, configured %d", chainID, cfg.Network.ChainID),
		}
	}

	utils.GetLogger().Info("Connected to Ethereum node",
		zap.String("endpoint", cfg.Network.WSEndpoint),
		zap.Uint64("chain_id", cfg.Network.ChainID))
	return client, nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	return srv
}
