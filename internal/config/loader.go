package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/adamwoolhether/httpengine/client"
)

// EnvPrefix prefixes every environment override. HTTPENGINE_CLIENT_CONNECT_TIMEOUT
// overrides client.connect_timeout.
const EnvPrefix = "HTTPENGINE"

// Load reads configFile, or the first httpengine.yaml/.yml found in the
// working directory or $HOME/.httpengine when configFile is empty, applies
// environment overrides and validates the result. Running without any file
// is allowed.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, "", reflect.TypeFor[Config]())

	if configFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := client.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{".", filepath.Join(home, ".httpengine")})
}

// findConfigFileInPaths returns the first httpengine.yaml or .yml in paths.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "httpengine"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindEnvKeys registers every leaf key of t so that environment variables
// override it even when the file does not mention the key.
func bindEnvKeys(v *viper.Viper, prefix string, t reflect.Type) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	for i := range t.NumField() {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			bindEnvKeys(v, key, ft)
			continue
		}

		_ = v.BindEnv(key)
	}
}
