package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath      string
	configPath  string
	catalogPath string
)

var rootCmd = &cobra.Command{
	Use:   "shoprec",
	Short: "Shoprec - behavioral product recommendations with built-in A/B experiments",
	Long: `Shoprec computes product recommendations from recorded shopper behavior
(views, cart actions, purchases) and measures algorithm variants against each
other through controlled experiments. Single Go binary, embedded SQLite.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("SHOPREC_DB_PATH", ""), "database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("SHOPREC_CONFIG", ""), "config file path")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", getEnvOrDefault("SHOPREC_CATALOG", "./catalog.json"), "catalog snapshot path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
