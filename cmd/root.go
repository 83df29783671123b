package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/config"
)

var cfg *config.Config

// Persistent flags shared by every subcommand. Each one, when set, wins over
// the config file and RETAIL_* variables.
var (
	configPath   string
	dataLocation string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:          "retail-insights",
	Short:        "Retail sales prediction, recommendation and forecasting service",
	Long:         "Serves sales predictions, demand estimates, association-rule recommendations and ARIMA sales forecasts over HTTP, and trains the artifacts they use.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		return eris.Wrap(config.InitLogger(cfg.Log), "init logger")
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default ./config.yaml when present)")
	pf.StringVar(&dataLocation, "data", "", "transactions spreadsheet path or URL (.xlsx, .csv or .zip)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
}

// loadConfig reads the config named by --config and applies the flag
// overrides the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.LoadFile(configPath)
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	flags := cmd.Flags()
	if flags.Changed("data") {
		c.Data.Transactions = dataLocation
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
