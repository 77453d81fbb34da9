package ml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ModelPathEnv overrides the configured model location.
const ModelPathEnv = "MODEL_PATH"

var DefaultModelPath = filepath.Join("models", "fare.model")

var ErrModelNotFound = errors.New("model not found")

// ResolveModelPath picks MODEL_PATH, then the configured path, then the
// default location.
func ResolveModelPath(configured string) string {
	if p := os.Getenv(ModelPathEnv); p != "" {
		return p
	}
	if configured != "" {
		return configured
	}
	return DefaultModelPath
}

// Loader memoizes loaded models per type and path for the process lifetime.
type Loader struct {
	cache *lru.Cache[string, Regressor]
}

func NewLoader(size int) (*Loader, error) {
	cache, err := lru.New[string, Regressor](size)
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache}, nil
}

func (l *Loader) Load(modelType, path string) (Regressor, error) {
	key := modelType + "\x00" + path
	if model, ok := l.cache.Get(key); ok {
		return model, nil
	}

	model, err := newModel(modelType)
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	l.cache.Add(key, model)
	return model, nil
}

func newModel(modelType string) (Regressor, error) {
	switch modelType {
	case "", LinearRegressionKind:
		return NewLinearRegression(), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

var defaultLoader = mustLoader(8)

func mustLoader(size int) *Loader {
	l, err := NewLoader(size)
	if err != nil {
		panic(err)
	}
	return l
}

// LoadModel loads through the process-wide loader.
func LoadModel(modelType, path string) (Regressor, error) {
	return defaultLoader.Load(modelType, path)
}

// NewModel returns an unfitted model of the given type.
func NewModel(modelType string) (Regressor, error) {
	return newModel(modelType)
}
