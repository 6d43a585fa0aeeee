package cfgmng

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Validator is implemented by configs that check themselves after loading.
type Validator interface {
	Validate() error
}

// Option configures the viper instance used by LoadConfig.
type Option func(v *viper.Viper)

// WithEnvPrefix makes PREFIX_SECTION_KEY override section.key
func WithEnvPrefix(prefix string) Option {
	return func(v *viper.Viper) {
		v.SetEnvPrefix(prefix)
	}
}

// WithDefaults sets default values keyed by dotted path. Only keys with a
// default (or present in the file) can be overridden from the environment.
func WithDefaults(defaults map[string]any) Option {
	return func(v *viper.Viper) {
		for k, val := range defaults {
			v.SetDefault(k, val)
		}
	}
}

// WithConfigFile reads the given file instead of searching path for filename.
func WithConfigFile(file string) Option {
	return func(v *viper.Viper) {
		if file != "" {
			v.SetConfigFile(file)
		}
	}
}

// LoadConfig reads path/filename.yaml and the environment into a T. A missing
// file is not an error when the config is searched for; an explicit
// WithConfigFile must exist. If *T implements Validator it is validated.
func LoadConfig[T any](path string, filename string, opts ...Option) (*T, error) {
	v := viper.New()
	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName(filename)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, opt := range opts {
		opt(v)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg T
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if val, ok := any(&cfg).(Validator); ok {
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	return &cfg, nil
}
