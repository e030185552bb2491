package whitelist

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedConfig represents the structure of a whitelist seed file
type SeedConfig struct {
	Projects []SeedEntry `yaml:"projects"`
}

// SeedEntry is one project in the seed file; enabled defaults to true
type SeedEntry struct {
	Code    string `yaml:"code"`
	Enabled *bool  `yaml:"enabled"`
}

// LoadSeed reads and validates a YAML seed file
func LoadSeed(filePath string) ([]Entry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var config SeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}

	entries := make([]Entry, 0, len(config.Projects))
	seen := make(map[string]bool, len(config.Projects))
	for _, p := range config.Projects {
		if !codePattern.MatchString(p.Code) {
			return nil, fmt.Errorf("validating seed entry %q: %w", p.Code, ErrInvalidCode)
		}
		if seen[p.Code] {
			return nil, fmt.Errorf("validating seed entry %s: duplicate code", p.Code)
		}
		seen[p.Code] = true

		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		entries = append(entries, Entry{Code: p.Code, Enabled: enabled})
	}

	return entries, nil
}

// Seed adds the entries whose codes are not in the whitelist yet.
// Existing projects keep their current state. Returns how many were added.
func (w *Whitelist) Seed(entries []Entry) (int, error) {
	for _, e := range entries {
		if !codePattern.MatchString(e.Code) {
			return 0, fmt.Errorf("seeding project %q: %w", e.Code, ErrInvalidCode)
		}
	}

	added := 0
	_, err := w.mutate(func(projects map[string]project) (bool, error) {
		for _, e := range entries {
			if _, ok := projects[e.Code]; ok {
				continue
			}
			projects[e.Code] = project{Enabled: e.Enabled}
			added++
		}
		return added > 0, nil
	})
	if err != nil {
		return 0, err
	}

	if added > 0 {
		w.logger.Info().Int("added", added).Msg("whitelist seeded")
	}
	return added, nil
}
