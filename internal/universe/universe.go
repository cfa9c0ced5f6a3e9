// Package universe loads the list of canonical symbols to ingest and the
// canonical-to-provider symbol maps.
//
// File layout:
//
//	regions:            # arbitrary nesting of maps and lists
//	  us:
//	    etfs: [SPY, QQQM]
//	symbol_mapping:
//	  stooq:
//	    SPY: spy.us
package universe

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"equities-daily/internal/errors"
)

// canonicalRe matches a sanitized canonical symbol.
var canonicalRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// Config is a parsed universe file.
type Config struct {
	Regions       yaml.Node                    `yaml:"regions"`
	SymbolMapping map[string]map[string]string `yaml:"symbol_mapping"`
}

// Load reads and parses the universe file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses universe YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}
	return &cfg, nil
}

// Symbols walks regions depth-first in document order and returns every
// entry once, upper-cased, keeping its first occurrence. Entries that are
// not canonical symbols stay in symbols and are also listed in invalid, so
// a run reports each of them as its own mapping failure.
func (c *Config) Symbols() (symbols, invalid []string) {
	var raw []string
	walk(&c.Regions, &raw)

	seen := make(map[string]struct{}, len(raw))
	symbols = make([]string, 0, len(raw))
	for _, s := range raw {
		sym, ok := Sanitize(s)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		symbols = append(symbols, sym)
		if !ok {
			invalid = append(invalid, sym)
		}
	}
	return symbols, invalid
}

func walk(n *yaml.Node, out *[]string) {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			walk(c, out)
		}
	case yaml.MappingNode:
		// Content alternates key, value
		for i := 1; i < len(n.Content); i += 2 {
			walk(n.Content[i], out)
		}
	case yaml.ScalarNode:
		if n.Tag != "!!null" && n.Value != "" {
			*out = append(*out, n.Value)
		}
	case yaml.AliasNode:
		if n.Alias != nil {
			walk(n.Alias, out)
		}
	}
}

// Sanitize upper-cases s and checks it against the canonical symbol pattern.
func Sanitize(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s, canonicalRe.MatchString(s)
}

// SymbolMap maps canonical symbols to one provider's identifiers.
type SymbolMap struct {
	Provider string
	m        map[string]string
}

// NewSymbolMap creates a SymbolMap from canonical -> provider pairs.
func NewSymbolMap(provider string, m map[string]string) SymbolMap {
	norm := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := Sanitize(k); ok {
			norm[s] = strings.TrimSpace(v)
		}
	}
	return SymbolMap{Provider: provider, m: norm}
}

// SymbolMap returns the map for provider. A provider absent from the file
// yields an empty map.
func (c *Config) SymbolMap(provider string) SymbolMap {
	return NewSymbolMap(provider, c.SymbolMapping[provider])
}

// ToProvider returns the provider identifier of canonical. A string that
// is not a canonical symbol is a schema error.
func (m SymbolMap) ToProvider(canonical string) (string, error) {
	if !canonicalRe.MatchString(canonical) {
		return "", &errors.SchemaError{Symbol: canonical, Field: "symbol", Reason: "not a canonical symbol"}
	}
	v, ok := m.m[canonical]
	if !ok || v == "" {
		return "", &errors.MissingMappingError{Symbol: canonical, Provider: m.Provider}
	}
	return v, nil
}

// Len returns the number of mapped symbols.
func (m SymbolMap) Len() int { return len(m.m) }
