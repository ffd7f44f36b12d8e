// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/evidence-engine/internal/secrets"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// optionalKeys are omitted from the default map, so they are bound to
// environment variables explicitly.
var optionalKeys = []string{
	"sources.enabled",
	"sources.landmark_file",
	"relevance.vocabulary_file",
	"sufficiency.anchor_file",
	"sources.ncbi_api_key",
	"sources.semantic_scholar_api_key",
	"sources.openalex_email",
	"cache.redis_password",
	"embedding.api_key",
	"cross_encoder.api_key",
	"fallback.api_key",
}

// configureViper registers the defaults, the config search path and the
// EVIDENCE_ENGINE_* environment bindings on v, then reads the config file.
// A missing config file is not an error.
func configureViper(v *viper.Viper, cfgFile string) error {
	defaults, err := defaultSettings()
	if err != nil {
		return err
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("evidence-engine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "evidence-engine"))
		}
	}

	v.SetEnvPrefix("EVIDENCE_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range optionalKeys {
		if err := v.BindEnv(k); err != nil {
			return err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// defaultSettings flattens DefaultPipelineConfig into the nested map viper
// uses for defaults, so every key is known to AutomaticEnv.
func defaultSettings() (map[string]any, error) {
	data, err := yaml.Marshal(types.DefaultPipelineConfig())
	if err != nil {
		return nil, fmt.Errorf("encoding default config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding default config: %w", err)
	}
	return m, nil
}

// loadConfig decodes the pipeline configuration from v and fills missing
// credentials from the .secrets/ directory.
func loadConfig(v *viper.Viper) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	secrets.Apply(&cfg, loadedSecrets)
	return cfg, nil
}
