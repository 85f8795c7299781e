package rules

import (
	"fmt"
	"sync/atomic"

	log "log/slog"
)

// Provider serves the current compiled ruleset to concurrent workers and
// supports hot reload. Readers always see a complete snapshot; a failed
// reload keeps the previous one.
type Provider struct {
	path    string
	current atomic.Pointer[Ruleset]
}

// NewProvider loads and compiles the configuration file.
func NewProvider(path string) (*Provider, error) {
	p := &Provider{path: path}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Current returns the active snapshot.
func (p *Provider) Current() *Ruleset {
	return p.current.Load()
}

// Reload re-reads and recompiles the configuration file and swaps it in.
// On error the active snapshot is unchanged.
func (p *Provider) Reload() error {
	doc, err := LoadFile(p.path)
	if err != nil {
		return fmt.Errorf("could not load rules: %w", err)
	}
	rs, err := Compile(doc)
	if err != nil {
		return fmt.Errorf("could not compile rules: %w", err)
	}
	p.current.Store(rs)
	log.Info("Loaded de-identification rules",
		"file", p.path,
		"labels", len(rs.labels),
		"transformations", len(rs.entries))
	return nil
}
