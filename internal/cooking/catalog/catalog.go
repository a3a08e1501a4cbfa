// Package catalog loads the frozen ingredient catalog consumed by the resolver.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/rsned/cookdb/pkg/cooking"
)

// LowPriceTag marks ingredients that count 1/1 toward the price totals.
const LowPriceTag = "CookLowPrice"

// Catalog is the immutable set of groups, rules and constants.
// It is safe for concurrent use once loaded.
type Catalog struct {
	// Groups is indexed by GroupID. Groups[0] is the empty sentinel.
	Groups      []cooking.Group
	SingleRules []cooking.Rule
	MultiRules  []cooking.Rule
	Multipliers [cooking.NumIngrSlots]float32
	// Tags holds interned tag names, indexed by Tag.
	Tags     []string
	Digest   string
	Warnings []string

	byName   map[string]cooking.GroupID
	byActor  map[string]cooking.GroupID
	tagIndex map[string]cooking.Tag
	lowPrice cooking.Tag
	hasLow   bool
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return cat, nil
}

// NumGroups returns the number of groups including the empty sentinel.
func (c *Catalog) NumGroups() int {
	return len(c.Groups)
}

// Group returns the group with the given id. The sentinel is not a valid lookup.
func (c *Catalog) Group(id cooking.GroupID) (*cooking.Group, bool) {
	if id == cooking.NoGroup || int(id) >= len(c.Groups) {
		return nil, false
	}
	return &c.Groups[id], true
}

// Lookup resolves a group name or actor name, ignoring case.
func (c *Catalog) Lookup(name string) (cooking.GroupID, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := c.byName[key]; ok {
		return id, true
	}
	id, ok := c.byActor[key]
	return id, ok
}

// GroupName returns the display name of a group.
func (c *Catalog) GroupName(id cooking.GroupID) string {
	if g, ok := c.Group(id); ok {
		return g.Name
	}
	return "<none>"
}

// Names maps ids to display names, skipping the sentinel.
func (c *Catalog) Names(ids []cooking.GroupID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != cooking.NoGroup {
			out = append(out, c.GroupName(id))
		}
	}
	return out
}

// TagName returns the name of an interned tag.
func (c *Catalog) TagName(t cooking.Tag) string {
	if int(t) < len(c.Tags) {
		return c.Tags[t]
	}
	return fmt.Sprintf("tag#%d", t)
}

// IsLowPrice reports whether g carries the low-price tag.
func (c *Catalog) IsLowPrice(g *cooking.Group) bool {
	return c.hasLow && g.Tags.Has(c.lowPrice)
}

// Multiplier returns the sell multiplier for a dish of n ingredient instances.
func (c *Catalog) Multiplier(n int) float32 {
	if n > cooking.NumIngrSlots {
		n = cooking.NumIngrSlots
	}
	if n < 1 {
		n = 1
	}
	return c.Multipliers[n-1]
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
