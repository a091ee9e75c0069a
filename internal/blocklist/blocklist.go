// Package blocklist provides request URL filtering for browser tabs.
// Rules are substring patterns matched against the full request URL; any
// match aborts the request before it leaves the browser.
package blocklist

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed blocklist.yaml
var defaultRulesFS embed.FS

// Rules holds the blocked URL substrings.
type Rules struct {
	Substrings []string `yaml:"substrings"`
}

var (
	embedded    *Rules
	embeddedErr error
	once        sync.Once
)

// Embedded returns the compiled-in default rules.
func Embedded() *Rules {
	once.Do(func() {
		embedded, embeddedErr = loadEmbedded()
		if embeddedErr != nil {
			log.Error().Err(embeddedErr).Msg("Failed to load embedded blocklist, starting empty")
			embedded = &Rules{}
		}
	})
	return embedded
}

func loadEmbedded() (*Rules, error) {
	data, err := defaultRulesFS.ReadFile("blocklist.yaml")
	if err != nil {
		return nil, err
	}

	r, err := parse(data)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("substrings", len(r.Substrings)).Msg("Blocklist loaded")
	return r, nil
}

// parse unmarshals YAML rules and rejects empty patterns.
func parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate rejects rule sets containing empty patterns. An empty pattern is
// a substring of every URL and would block all traffic.
func (r *Rules) Validate() error {
	for i, s := range r.Substrings {
		if s == "" {
			return fmt.Errorf("blocklist entry %d is empty", i)
		}
	}
	return nil
}

// Match reports whether url contains any blocked substring.
func (r *Rules) Match(url string) bool {
	for _, s := range r.Substrings {
		if strings.Contains(url, s) {
			return true
		}
	}
	return false
}
