// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// The file name is the key and the trimmed file contents are the value.
//
// Known keys: ncbi-api-key, ncbi-email, crossref-mailto.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/pubmed-engine/pkg/types"
)

// Known key file names.
const (
	NCBIAPIKey     = "ncbi-api-key"
	NCBIEmail      = "ncbi-email"
	CrossrefMailto = "crossref-mailto"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error and yields an empty set. Unreadable files are logged and
// skipped.
func Load(dir string) (Secrets, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	s := make(Secrets)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("skipping unreadable secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			s[name] = value
		}
	}
	return s, nil
}

// Apply fills credentials the configuration leaves empty. Values already
// set through flags, environment or config file win.
func (s Secrets) Apply(cfg *types.PipelineConfig) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = s[key]
		}
	}
	fill(&cfg.Fetch.APIKey, NCBIAPIKey)
	fill(&cfg.Fetch.Email, NCBIEmail)
	fill(&cfg.Enrich.Mailto, CrossrefMailto)
	if cfg.Enrich.Mailto == "" {
		cfg.Enrich.Mailto = s[NCBIEmail]
	}
}
