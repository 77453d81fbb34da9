package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"farecast/logging"
)

const (
	// PathEnv selects the config file.
	PathEnv     = "FARECAST_CONFIG"
	DefaultPath = "config.yaml"
)

type Config struct {
	HTTP struct {
		Port             int           `yaml:"port"`
		Timeout          time.Duration `yaml:"timeout"`
		AllowedOrigins   []string      `yaml:"allowed_origins"`
		MaxBatch         int           `yaml:"max_batch"`
		MaxBodyBytes     int64         `yaml:"max_body_bytes"`
		PredictionFormat string        `yaml:"prediction_format"`
	} `yaml:"http"`
	ML struct {
		ModelType string `yaml:"model_type"`
		ModelPath string `yaml:"model_path"`
	} `yaml:"ml"`
	Log      logging.Config `yaml:"log"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Training struct {
		DataPath    string  `yaml:"data_path"`
		TestSize    float64 `yaml:"test_size"`
		RandomState int64   `yaml:"random_state"`
		MaxRows     int     `yaml:"max_rows"`
	} `yaml:"training"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var c Config
	c.HTTP.Port = 32000
	c.HTTP.Timeout = 30 * time.Second
	c.HTTP.AllowedOrigins = []string{"*"}
	c.HTTP.MaxBatch = 1000
	c.HTTP.MaxBodyBytes = 1 << 20
	c.HTTP.PredictionFormat = "number"
	c.ML.ModelType = "linear_regression"
	c.Log.Level = "info"
	c.Training.DataPath = "uber.csv"
	c.Training.TestSize = 0.2
	c.Training.RandomState = 42
	c.Training.MaxRows = 100000
	return &c
}

// ResolvePath returns FARECAST_CONFIG or the default file name.
func ResolvePath() string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load decodes path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// ApplyEnv applies PORT. MODEL_PATH is resolved by ml.ResolveModelPath.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.HTTP.Port = port
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	switch c.HTTP.PredictionFormat {
	case "", "number", "currency":
	default:
		return fmt.Errorf("http.prediction_format must be number or currency, got %q", c.HTTP.PredictionFormat)
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be in (0, 1), got %v", c.Training.TestSize)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
