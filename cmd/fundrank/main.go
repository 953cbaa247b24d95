package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	fundlog "github.com/sawpanic/fundrank/internal/log"
)

const (
	appName = "FundRank"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "fundrank",
		Short:   "Reconcile mutual fund data across providers and rank funds by category",
		Version: version,
		Long: `FundRank fetches fund records from several data providers, reconciles them
into one canonical record per fund, enriches them with derived metrics and
ranks each category with configurable weights.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			return fundlog.Setup(level, fundlog.Format(format), os.Stderr)
		},
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "auto", "Log format (auto|console|json)")
	rootCmd.PersistentFlags().String("providers", "", "Providers config file (default config/providers.yaml)")
	rootCmd.PersistentFlags().String("weights-config", "", "Weights config file (default config/weights.yaml)")
	rootCmd.PersistentFlags().String("offline", "", "Directory of provider fixture JSON files; skips the network")

	rootCmd.AddCommand(newRankCmd())       // Ranking
	rootCmd.AddCommand(newCategoriesCmd()) // Catalog
	rootCmd.AddCommand(newWeightsCmd())    // Configuration
	rootCmd.AddCommand(newMonitorCmd())    // Monitoring

	return rootCmd
}
