package config

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CONSENSUS_LLM_MODEL.
const EnvPrefix = "CONSENSUS_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

//nolint:gochecknoglobals // reflect type cache
var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig loads and validates configuration from a YAML file with environment variable substitution.
// Fields missing from the file keep the values from Default.
func LoadConfig(configPath string) (*Config, error) {
	config, err := ReadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Finalize(config)
}

// ReadConfig decodes a YAML file without finalizing it, so callers can
// layer command line flags on top before validation.
func ReadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(data)
}

// Parse decodes YAML configuration bytes, applies overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	config, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Finalize(config)
}

// Decode substitutes ${ENV} placeholders and unmarshals data over Default.
func Decode(data []byte) (*Config, error) {
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1]
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})

	config := Default()
	if err := yaml.Unmarshal([]byte(dataStr), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &config, nil
}

// Finalize applies environment overrides and derived defaults, then validates.
// Used for configurations assembled from flags without a file.
func Finalize(config *Config) (*Config, error) {
	applyEnvOverrides(config)
	applyDefaults(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	v := reflect.ValueOf(config).Elem()
	applyEnvOverridesRecursive(v, v.Type(), EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		tag := fieldType.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}

		envKey := strings.ToUpper(prefix + strings.Split(tag, ",")[0])

		if field.Kind() == reflect.Struct && field.Type() != durationType {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}

		if envValue := os.Getenv(envKey); envValue != "" {
			setFieldFromEnv(field, envValue)
		}
	}
}

func setFieldFromEnv(field reflect.Value, envValue string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(envValue); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int64:
		if val, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			field.SetInt(val)
		}
	case reflect.Float64:
		if val, err := strconv.ParseFloat(envValue, 64); err == nil {
			field.SetFloat(val)
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(val)
		}
	}
}
