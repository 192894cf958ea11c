// Package policyloader loads Policy Bundles from the filesystem, compiles
// each into its runtime Policy set, and serves the result to the
// Governance Engine, enabling bundle changes without a redeploy.
package policyloader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentgov/substrate/pkg/bundle"
	"github.com/agentgov/substrate/pkg/contracts"
)

// Loader loads a directory of Bundle files (one bundle per tenant, named
// "<tenant_id>.json" or "<tenant_id>.yaml") and serves their compiled
// Policy sets. Files are read only when LoadAll or LoadFile is called; the
// directory is not watched for changes.
type Loader struct {
	mu       sync.RWMutex
	bundles  map[string]contracts.Bundle   // tenantID -> bundle
	policies map[string][]contracts.Policy // tenantID -> compiled policies
	dir      string
	onReload func(tenantID string, b contracts.Bundle)
}

// NewLoader creates a Loader for dir. It reads nothing until LoadAll or
// LoadFile is called.
func NewLoader(dir string) *Loader {
	return &Loader{
		bundles:  make(map[string]contracts.Bundle),
		policies: make(map[string][]contracts.Policy),
		dir:      dir,
	}
}

// OnReload registers a callback invoked after a bundle is (re)loaded and
// compiled, receiving the tenant ID its filename identifies.
func (l *Loader) OnReload(fn func(tenantID string, b contracts.Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every bundle file in the configured directory.
func (l *Loader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("policyloader: read dir %s: %w", l.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			return fmt.Errorf("policyloader: load %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// LoadFile parses, validates, and compiles a single bundle file, filing it
// under the tenant ID derived from its filename (without extension).
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	b, _, err := bundle.Parse(data)
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	tenantID := tenantIDFromFilename(path)
	compiled := bundle.Compile(b)

	l.mu.Lock()
	l.bundles[tenantID] = b
	l.policies[tenantID] = compiled
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(tenantID, b)
	}
	return nil
}

func tenantIDFromFilename(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// GetBundle returns the raw Bundle loaded for tenantID.
func (l *Loader) GetBundle(tenantID string) (contracts.Bundle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bundles[tenantID]
	return b, ok
}

// ActivePolicies returns tenantID's compiled, enabled Policy set, ready to
// hand to governance.Engine.Evaluate. An unknown tenant gets an empty,
// fail-closed policy set rather than an error.
func (l *Loader) ActivePolicies(tenantID string) []contracts.Policy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]contracts.Policy(nil), l.policies[tenantID]...)
}

// ActiveObligations returns tenantID's loaded bundle's Obligations, ready
// to hand to governance.Engine.Evaluate. An unknown tenant gets an empty
// set rather than an error.
func (l *Loader) ActiveObligations(tenantID string) []contracts.Obligation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]contracts.Obligation(nil), l.bundles[tenantID].Obligations...)
}

// AllTenants returns the tenant IDs with a currently loaded bundle.
func (l *Loader) AllTenants() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tenants := make([]string, 0, len(l.bundles))
	for id := range l.bundles {
		tenants = append(tenants, id)
	}
	return tenants
}
