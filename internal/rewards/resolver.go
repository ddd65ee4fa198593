// Package rewards maps reward keys to concrete items and delivers them.
package rewards

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/atc-pixel/yks-arena-sub001/internal/profile"
)

type Resolver interface {
	// Resolve returns the items behind key. Unknown keys resolve to an empty list.
	Resolve(ctx context.Context, key string) ([]profile.Item, error)
}

// Catalog is a static lookup table of reward keys.
type Catalog struct {
	entries map[string][]profile.Item
}

func NewCatalog(entries map[string][]profile.Item) *Catalog {
	if entries == nil {
		entries = map[string][]profile.Item{}
	}
	return &Catalog{entries: entries}
}

// LoadCatalog reads a JSON object of key -> items. An empty path gives an
// empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward catalog: %w", err)
	}
	entries := map[string][]profile.Item{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode reward catalog %s: %w", path, err)
	}
	return NewCatalog(entries), nil
}

func (c *Catalog) Resolve(_ context.Context, key string) ([]profile.Item, error) {
	items, ok := c.entries[key]
	if !ok {
		return []profile.Item{}, nil
	}
	return slices.Clone(items), nil
}

func (c *Catalog) Len() int { return len(c.entries) }
