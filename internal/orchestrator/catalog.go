package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/pulseguard/internal/registry"
)

// Tool is one catalog entry.
type Tool struct {
	Key         Key
	Description string
	Schema      any
}

// Catalog is the aggregate tool list across providers, in namespace
// registration order and then provider order.
type Catalog struct {
	Tools  []Tool
	byKey  map[Key]int
	Errors []error
}

// Lookup finds a tool by key.
func (c *Catalog) Lookup(k Key) (Tool, bool) {
	i, ok := c.byKey[k]
	if !ok {
		return Tool{}, false
	}
	return c.Tools[i], true
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.Tools) }

// Keys returns serialized keys in catalog order.
func (c *Catalog) Keys() []string {
	out := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		out[i] = t.Key.String()
	}
	return out
}

// Lister is the part of the registry the catalog builder needs.
type Lister interface {
	Namespaces() []string
	ListTools(ctx context.Context, ns string) ([]registry.Descriptor, error)
}

// BuildCatalog lists every namespace concurrently and merges the results.
// A namespace that fails to list contributes no tools and one entry in
// Catalog.Errors. Tools whose keys would not parse back are skipped.
func BuildCatalog(ctx context.Context, l Lister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	namespaces := l.Namespaces()
	lists := make([][]registry.Descriptor, len(namespaces))
	errs := make([]error, len(namespaces))

	var g errgroup.Group
	for i, ns := range namespaces {
		g.Go(func() error {
			lists[i], errs[i] = l.ListTools(ctx, ns)
			return nil
		})
	}
	_ = g.Wait()

	cat := &Catalog{byKey: map[Key]int{}}
	for i, ns := range namespaces {
		if errs[i] != nil {
			logger.Warn("skipping provider in catalog", "namespace", ns, "error", errs[i])
			cat.Errors = append(cat.Errors, fmt.Errorf("list %s: %w", ns, errs[i]))
			continue
		}
		for _, d := range lists[i] {
			k, err := NewKey(ns, d.Name)
			if err != nil {
				logger.Warn("rejecting tool", "namespace", ns, "tool", d.Name, "error", err)
				cat.Errors = append(cat.Errors, err)
				continue
			}
			if back, err := ParseKey(k.String()); err != nil || back != k {
				err = fmt.Errorf("%w: %q does not round-trip", ErrInvalidToolKey, k.String())
				logger.Warn("rejecting tool", "namespace", ns, "tool", d.Name, "error", err)
				cat.Errors = append(cat.Errors, err)
				continue
			}
			if _, dup := cat.byKey[k]; dup {
				continue
			}
			cat.byKey[k] = len(cat.Tools)
			cat.Tools = append(cat.Tools, Tool{
				Key:         k,
				Description: fmt.Sprintf("[%s] %s", ns, d.Description),
				Schema:      schemaOrEmpty(d.Schema),
			})
		}
	}
	return cat
}

func schemaOrEmpty(s any) any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return s
}
