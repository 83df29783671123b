package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/arima"
	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/rules"
	"github.com/sells-group/retail-insights/internal/salesmodel"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the artifacts the server loads",
}

var (
	trainMinSupport float64
	trainMinLift    float64
	trainMaxItemset int
	trainOrder      string
)

var trainRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Mine association rules from invoice baskets",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := rules.MineOptions{
			MinSupport: cfg.Training.MinSupport,
			MinLift:    cfg.Training.MinLift,
			MaxItemset: cfg.Training.MaxItemset,
		}
		if cmd.Flags().Changed("min-support") {
			opts.MinSupport = trainMinSupport
		}
		if cmd.Flags().Changed("min-lift") {
			opts.MinLift = trainMinLift
		}
		if cmd.Flags().Changed("max-itemset") {
			opts.MaxItemset = trainMaxItemset
		}
		return runTrainRules(cmd.Context(), cfg, opts, cmd.OutOrStdout())
	},
}

var trainSalesCmd = &cobra.Command{
	Use:   "sales",
	Short: "Fit the linear sales model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrainSales(cmd.Context(), cfg, cmd.OutOrStdout())
	},
}

var trainForecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Fit the forecast ARIMA model on daily sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		order, err := arima.ParseOrder(trainOrder)
		if err != nil {
			return err
		}
		return runTrainForecast(cmd.Context(), cfg, order, cmd.OutOrStdout())
	},
}

type rulesSummary struct {
	Baskets    int     `yaml:"baskets"`
	Rules      int     `yaml:"rules"`
	MinSupport float64 `yaml:"min_support"`
	MinLift    float64 `yaml:"min_lift"`
	MaxItemset int     `yaml:"max_itemset"`
	Output     string  `yaml:"output"`
}

func runTrainRules(ctx context.Context, c *config.Config, opts rules.MineOptions, out io.Writer) error {
	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}
	baskets := ds.Baskets()
	mined, err := rules.Mine(ctx, baskets, opts)
	if err != nil {
		return err
	}
	if err := rules.Save(c.Artifacts.Rules, mined); err != nil {
		return err
	}
	zap.L().Info("rules written", zap.String("path", c.Artifacts.Rules), zap.Int("rules", len(mined)))

	return printYAML(out, rulesSummary{
		Baskets:    len(baskets),
		Rules:      len(mined),
		MinSupport: opts.MinSupport,
		MinLift:    opts.MinLift,
		MaxItemset: opts.MaxItemset,
		Output:     c.Artifacts.Rules,
	})
}

type salesSummary struct {
	Intercept    float64            `yaml:"intercept"`
	Coefficients map[string]float64 `yaml:"coefficients"`
	RSquared     float64            `yaml:"r_squared"`
	Samples      int                `yaml:"samples"`
	Output       string             `yaml:"output"`
}

func runTrainSales(ctx context.Context, c *config.Config, out io.Writer) error {
	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}
	x, y := ds.SalesFeatures()
	m, err := salesmodel.Fit(x, y)
	if err != nil {
		return err
	}
	if err := m.Save(c.Artifacts.SalesModel); err != nil {
		return err
	}

	coefs := make(map[string]float64, len(m.Features))
	for i, name := range m.Features {
		coefs[name] = m.Coefficients[i]
	}
	return printYAML(out, salesSummary{
		Intercept:    m.Intercept,
		Coefficients: coefs,
		RSquared:     m.RSquared,
		Samples:      m.Samples,
		Output:       c.Artifacts.SalesModel,
	})
}

type forecastModelSummary struct {
	arima.Summary `yaml:",inline"`
	Start         string `yaml:"start"`
	Output        string `yaml:"output"`
}

func runTrainForecast(ctx context.Context, c *config.Config, order arima.Order, out io.Writer) error {
	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}
	// Net daily quantity, returns included, unlike the positive-sales
	// series the served charts are drawn from.
	series := ds.DailySeries(nil)
	if len(series) == 0 {
		return eris.New("train forecast: dataset has no transactions")
	}
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Quantity
	}

	m, err := arima.Fit(values, order)
	if err != nil {
		return err
	}
	m.Start = series[0].Day
	if err := m.Save(c.Artifacts.ForecastModel); err != nil {
		return err
	}
	if m.Order != order {
		zap.L().Warn("forecast order reduced for short series",
			zap.Stringer("requested", order),
			zap.Stringer("fitted", m.Order),
		)
	}

	return printYAML(out, forecastModelSummary{
		Summary: m.Summary(),
		Start:   m.Start.Format("2006-01-02"),
		Output:  c.Artifacts.ForecastModel,
	})
}

func init() {
	trainRulesCmd.Flags().Float64Var(&trainMinSupport, "min-support", 0.05, "minimum itemset support (fraction of baskets)")
	trainRulesCmd.Flags().Float64Var(&trainMinLift, "min-lift", 1, "minimum rule lift")
	trainRulesCmd.Flags().IntVar(&trainMaxItemset, "max-itemset", 4, "largest itemset size (0 for no limit)")
	trainForecastCmd.Flags().StringVar(&trainOrder, "order", "1,1,1", "ARIMA order p,d,q")

	trainCmd.AddCommand(trainRulesCmd, trainSalesCmd, trainForecastCmd)
	rootCmd.AddCommand(trainCmd)
}
