package cmd

import (
	"context"

	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/utils"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	envFiles []string
	logFile  string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "flasharb",
	Short: "A flash loan arbitrage scanner for AMM venues",
	Long: `A CLI bot that scans constant-product, weighted and stableswap pools on
every new block for cross-venue price differences and executes profitable
round trips through a flash loan executor contract.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flasharb.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before the environment is read")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug, logFile)
}

// loadConfig reads the config file and overlays the environment
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
