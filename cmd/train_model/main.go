package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"farecast/config"
	"farecast/db"
	"farecast/logging"
	"farecast/ml"
	"farecast/training"
)

var (
	configPath  string
	dbPath      string
	logLevel    string
	dataPath    string
	modelPath   string
	metricsPath string
	modelType   string
	testSize    float64
	randomState int64
	maxRows     int
	historySize int
)

var rootCmd = &cobra.Command{
	Use:   "train_model",
	Short: "Train the fare regression model",
	Long: `Read a ride CSV, drop rows with a missing or implausible fare, impute
missing coordinates with column medians, fit a linear regression on a seeded
train/test split and write the model plus its metrics next to each other.`,
	SilenceUsage: true,
	RunE:         runTrain,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded training runs",
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config supplying defaults (FARECAST_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite file recording training runs")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level")

	rootCmd.Flags().StringVar(&dataPath, "data-path", "uber.csv", "Input CSV")
	rootCmd.Flags().StringVar(&modelPath, "model-path", ml.DefaultModelPath, "Model output path")
	rootCmd.Flags().StringVar(&metricsPath, "metrics-path", "", "Metrics output path (default <model-path>.metrics.json)")
	rootCmd.Flags().StringVar(&modelType, "model-type", ml.LinearRegressionKind, "Model type")
	rootCmd.Flags().Float64Var(&testSize, "test-size", 0.2, "Fraction of rows held out for evaluation")
	rootCmd.Flags().Int64Var(&randomState, "random-state", 42, "Seed for the train/test split")
	rootCmd.Flags().IntVar(&maxRows, "nrows", 100000, "Read at most this many data rows, 0 for all")

	historyCmd.Flags().IntVarP(&historySize, "limit", "n", 20, "Number of runs to show")

	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadDefaults fills every flag the user did not set from the config file.
func loadDefaults(cmd *cobra.Command) error {
	path := configPath
	if path == "" {
		if os.Getenv(config.PathEnv) == "" {
			return nil
		}
		path = config.ResolvePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("data-path") && cfg.Training.DataPath != "" {
		dataPath = cfg.Training.DataPath
	}
	if !flags.Changed("model-path") && cfg.ML.ModelPath != "" {
		modelPath = cfg.ML.ModelPath
	}
	if !flags.Changed("model-type") && cfg.ML.ModelType != "" {
		modelType = cfg.ML.ModelType
	}
	if !flags.Changed("test-size") {
		testSize = cfg.Training.TestSize
	}
	if !flags.Changed("random-state") {
		randomState = cfg.Training.RandomState
	}
	if !flags.Changed("nrows") {
		maxRows = cfg.Training.MaxRows
	}
	if !flags.Changed("db") && cfg.Database.Path != "" {
		dbPath = cfg.Database.Path
	}
	if !flags.Changed("log-level") && cfg.Log.Level != "" {
		logLevel = cfg.Log.Level
	}
	return nil
}

func newLogger() (*zap.Logger, error) {
	logger, _, err := logging.New(logging.Config{Level: logLevel, Format: "console"})
	return logger, err
}

func runTrain(cmd *cobra.Command, args []string) error {
	if err := loadDefaults(cmd); err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	result, err := training.Run(training.Config{
		DataPath:    dataPath,
		ModelPath:   modelPath,
		MetricsPath: metricsPath,
		ModelType:   modelType,
		TestSize:    testSize,
		RandomState: randomState,
		MaxRows:     maxRows,
	}, logger)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if dbPath != "" {
		if err := db.InitDB(dbPath); err != nil {
			return fmt.Errorf("open training log: %w", err)
		}
		defer db.Close()
		entry := db.TrainingLog{
			ModelName:  result.ModelType,
			ModelPath:  result.ModelPath,
			RMSE:       result.Metrics.RMSE,
			MAE:        result.Metrics.MAE,
			R2:         result.Metrics.R2,
			DataPoints: result.Metrics.TrainRows + result.Metrics.TestRows,
			Seed:       result.RandomState,
			TrainedAt:  time.Now(),
		}
		if err := db.SaveTrainingLog(entry); err != nil {
			return fmt.Errorf("record training run: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "RMSE: %.4f\nMAE:  %.4f\nR2:   %.4f\n", result.Metrics.RMSE, result.Metrics.MAE, result.Metrics.R2)
	fmt.Fprintf(cmd.OutOrStdout(), "model saved to %s\nmetrics saved to %s\n", result.ModelPath, result.MetricsPath)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := loadDefaults(cmd); err != nil {
		return err
	}
	if dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	if err := db.InitDB(dbPath); err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.LoadTrainingLog(historySize)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRAINED AT\tMODEL\tROWS\tSEED\tRMSE\tMAE\tR2\tPATH")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%.4f\t%s\n",
			run.TrainedAt.Format(time.RFC3339), run.ModelName, run.DataPoints, run.Seed,
			run.RMSE, run.MAE, run.R2, run.ModelPath)
	}
	return w.Flush()
}
