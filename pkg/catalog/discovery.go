package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DiscoveryFilePrefix and DiscoveryFileSuffix identify discovery report files
// written by the external API discovery process.
const (
	DiscoveryFilePrefix = "kalshi_api_discovery_"
	DiscoveryFileSuffix = ".json"
)

// discoveryReport mirrors the relevant portion of a discovery report file.
type discoveryReport struct {
	PublicEndpoints []Descriptor `json:"public_endpoints"`
}

// Load reads the newest discovery report in dir and builds a catalog from its
// public endpoints. Falls back to the default catalog when no report exists
// or the newest report cannot be parsed; the fallback is logged, never an error.
func Load(dir string, logger zerolog.Logger) *Catalog {
	path, err := newestDiscoveryFile(dir)
	if err != nil {
		logger.Warn().Err(err).Str("dir", dir).Msg("Discovery file scan failed, using default endpoints")
		return Default()
	}
	if path == "" {
		logger.Warn().Str("dir", dir).Msg("No API discovery file found, using default endpoints")
		return Default()
	}

	cat, err := LoadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Error loading discovery file, using default endpoints")
		return Default()
	}

	logger.Info().
		Int("endpoints", cat.Len()).
		Str("file", filepath.Base(path)).
		Msg("Loaded endpoint catalog from discovery file")
	return cat
}

// LoadFile parses a single discovery report file into a catalog.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read discovery file: %w", err)
	}

	var report discoveryReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse discovery file %s: %w", filepath.Base(path), err)
	}

	if len(report.PublicEndpoints) == 0 {
		return nil, fmt.Errorf("discovery file %s contains no public endpoints", filepath.Base(path))
	}

	descriptors := make([]Descriptor, 0, len(report.PublicEndpoints))
	for _, d := range report.PublicEndpoints {
		if d.Method == "" {
			d.Method = "GET"
		}
		descriptors = append(descriptors, d)
	}

	return New(descriptors), nil
}

// newestDiscoveryFile returns the lexically greatest matching file in dir.
// Discovery filenames embed a sortable timestamp, so the greatest name is the
// most recent report. Returns "" when none match.
func newestDiscoveryFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, DiscoveryFilePrefix) && strings.HasSuffix(name, DiscoveryFileSuffix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", nil
	}

	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}
