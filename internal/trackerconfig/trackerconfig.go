// Package trackerconfig implements the runtime-mutable tracker category
// registry and the system-prompt/tool-schema builder it feeds (§4.9).
package trackerconfig

import (
	"encoding/json"
	"sort"
	"strings"
	"sync/atomic"
)

// Category is one user-editable extraction category.
type Category struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Config is the full tracker snapshot: readers always see one consistent
// pointer, swapped atomically by Set/Reset, never partial state.
type Config struct {
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Categories         []Category `json:"categories"`
	ExtraInstructions  string     `json:"extra_instructions"`
}

func defaultConfig() Config {
	return Config{
		Name:        "default_tracker",
		Description: "Extracts decisions and action items from meeting transcript windows.",
		Categories: []Category{
			{Key: "decision", Label: "Decision", Description: "A concrete decision the group settled on.", Enabled: true},
			{Key: "action_item", Label: "Action item", Description: "A task someone committed to doing.", Enabled: true},
			{Key: "key_insight", Label: "Key insight", Description: "A noteworthy realization or finding.", Enabled: true},
			{Key: "commitment", Label: "Commitment", Description: "A promise or commitment made by a participant.", Enabled: true},
		},
		ExtraInstructions: "Only emit an item when the window contains a clear, attributable statement. Prefer no_match over a speculative guess.",
	}
}

// Registry is the atomically-swapped tracker config snapshot (§9 on
// global singletons: "the atomic swap on tracker config should use a
// snapshot... so readers never observe partial state").
type Registry struct {
	defaults Config
	current  atomic.Pointer[Config]
}

// New builds a Registry seeded with the given defaults (loaded once at
// startup from env/viper per SPEC_FULL.md §4.9; falls back to the
// built-in default set if defaults is the zero value).
func New(defaults Config) *Registry {
	if len(defaults.Categories) == 0 {
		defaults = defaultConfig()
	}
	r := &Registry{defaults: defaults}
	snap := defaults
	r.current.Store(&snap)
	return r
}

// Get returns the current snapshot.
func (r *Registry) Get() Config {
	return *r.current.Load()
}

// Set atomically replaces the snapshot.
func (r *Registry) Set(cfg Config) {
	snap := cfg
	r.current.Store(&snap)
}

// Reset restores the defaults captured at construction time.
func (r *Registry) Reset() Config {
	snap := r.defaults
	r.current.Store(&snap)
	return snap
}

// EnabledKeys returns the enabled category keys in declared order.
func (c Config) EnabledKeys() []string {
	keys := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Enabled {
			keys = append(keys, cat.Key)
		}
	}
	return keys
}

// AllowedTypes returns EnabledKeys() union {"no_match"}, sorted for
// deterministic schema generation.
func (c Config) AllowedTypes() []string {
	types := append([]string{"no_match"}, c.EnabledKeys()...)
	sort.Strings(types)
	return types
}

// BuildSystemPrompt composes the LLM system prompt by enumerating enabled
// categories and appending the instruction paragraph (§4.9).
func (c Config) BuildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(c.Description)
	b.WriteString("\n\nCategories:\n")
	for _, cat := range c.Categories {
		if !cat.Enabled {
			continue
		}
		b.WriteString("- ")
		b.WriteString(cat.Key)
		b.WriteString(" (")
		b.WriteString(cat.Label)
		b.WriteString("): ")
		b.WriteString(cat.Description)
		b.WriteString("\n")
	}
	if c.ExtraInstructions != "" {
		b.WriteString("\n")
		b.WriteString(c.ExtraInstructions)
	}
	return b.String()
}

// MarshalJSON and UnmarshalJSON are the default struct tag behavior;
// ParseJSON is a small helper that cmd/decisions uses to decode
// TRACKER_CATEGORIES_JSON at startup (the PUT /config handler decodes its
// body directly).
func ParseJSON(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
