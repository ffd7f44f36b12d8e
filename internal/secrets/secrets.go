// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Recognized key files: ncbi-api-key, semantic-scholar-api-key, openalex-email,
// tavily-api-key, huggingface-api-key, embedding-api-key, redis-password.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Key file names.
const (
	NCBIAPIKey            = "ncbi-api-key"
	SemanticScholarAPIKey = "semantic-scholar-api-key"
	OpenAlexEmail         = "openalex-email"
	TavilyAPIKey          = "tavily-api-key"
	HuggingFaceAPIKey     = "huggingface-api-key"
	EmbeddingAPIKey       = "embedding-api-key"
	RedisPassword         = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *slog.Logger) (map[string]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", "name", name, "err", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills credentials in cfg that are still empty from s. Values set
// by the config file or environment win.
func Apply(cfg *types.PipelineConfig, s map[string]string) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}
	fill(&cfg.Sources.NCBIAPIKey, NCBIAPIKey)
	fill(&cfg.Sources.SemanticScholarAPIKey, SemanticScholarAPIKey)
	fill(&cfg.Sources.OpenAlexEmail, OpenAlexEmail)
	fill(&cfg.Fallback.APIKey, TavilyAPIKey)
	fill(&cfg.CrossEncoder.APIKey, HuggingFaceAPIKey)
	fill(&cfg.Embedding.APIKey, EmbeddingAPIKey)
	fill(&cfg.Cache.RedisPassword, RedisPassword)
}
