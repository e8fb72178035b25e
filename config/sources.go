package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"crc-news/models"
)

//go:embed sources.yaml
var defaultSources []byte

// sourceFile mirrors the YAML layout. Enabled is a pointer so an omitted key means enabled.
type sourceFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

type sourceEntry struct {
	models.NewsSource `yaml:",inline"`
	Enabled           *bool `yaml:"enabled"`
}

// LoadSources reads the source catalog from path, or the embedded default when path is empty.
func LoadSources(path string) ([]models.NewsSource, error) {
	data := defaultSources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read sources file: %v", ErrConfiguration, err)
		}
		data = b
	}
	return ParseSources(data)
}

// ParseSources decodes, defaults and validates a YAML source catalog.
func ParseSources(data []byte) ([]models.NewsSource, error) {
	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse sources: %v", ErrConfiguration, err)
	}

	seen := make(map[string]bool)
	out := make([]models.NewsSource, 0, len(file.Sources))
	for i, entry := range file.Sources {
		src := entry.NewsSource
		src.Enabled = entry.Enabled == nil || *entry.Enabled
		setSourceDefaults(&src)
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("%w: source %d (%s): %v", ErrConfiguration, i, src.Name, err)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("%w: duplicate source name %q", ErrConfiguration, src.Name)
		}
		seen[src.Name] = true
		out = append(out, src)
	}
	return out, nil
}

func setSourceDefaults(src *models.NewsSource) {
	src.Domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(src.Domain), "www."))
	if src.Category == "" {
		src.Category = models.CategoryClinicalResearch
	}
	if src.Kind == "" {
		if src.Type == models.SourcePubMed || src.Type == models.SourceEuropePMC {
			src.Kind = models.KindJournal
		} else {
			src.Kind = models.KindNews
		}
	}
}

func validateSource(src models.NewsSource) error {
	if src.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !src.Category.Valid() {
		return fmt.Errorf("unknown category %q", src.Category)
	}
	if src.Kind != models.KindJournal && src.Kind != models.KindNews {
		return fmt.Errorf("unknown kind %q", src.Kind)
	}
	if src.MaxItems < 0 {
		return fmt.Errorf("max_items must be non-negative")
	}
	switch src.Type {
	case models.SourceRSS:
		if src.URL == "" {
			return fmt.Errorf("feed url is required")
		}
		// feeds are only trusted on an explicit allow-listed domain
		if src.Domain == "" {
			return fmt.Errorf("domain is required for feed sources")
		}
	case models.SourcePubMed, models.SourceEuropePMC, models.SourceCSE:
		if len(src.Queries) == 0 {
			return fmt.Errorf("at least one query is required")
		}
	default:
		return fmt.Errorf("unknown type %q", src.Type)
	}
	return nil
}
