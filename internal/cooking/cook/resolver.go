// Package cook resolves ingredient lists into cooked results.
package cook

import (
	"errors"
	"fmt"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/pkg/cooking"
)

// ErrIngredientCount is returned when a dish has no ingredients or more than five.
var ErrIngredientCount = errors.New("a dish takes 1 to 5 ingredients")

// CatalogError reports a reference the catalog cannot satisfy.
// It indicates a catalog defect and should abort any batch work.
type CatalogError struct {
	Group  cooking.GroupID
	Reason string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog inconsistency at group %d: %s", e.Group, e.Reason)
}

// Resolver applies the catalog's rules. It holds no mutable state and may be
// shared across goroutines.
type Resolver struct {
	cat *catalog.Catalog
}

// New creates a Resolver over cat.
func New(cat *catalog.Catalog) *Resolver {
	return &Resolver{cat: cat}
}

// Catalog returns the catalog the resolver reads.
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.cat
}

// dish is the accumulated state of one resolve call.
type dish struct {
	n       int
	ids     [cooking.NumIngrSlots]cooking.GroupID
	groups  [cooking.NumIngrSlots]*cooking.Group
	effect  cooking.Effect
	cook    int32
	crit    int32
	dubious int32
	unique  int
}

// Resolve cooks the given ingredients in order. Empty slots must already be
// removed. The result depends on ingredient order only through rule matching.
func (r *Resolver) Resolve(ingredients []cooking.GroupID) (cooking.ResolvedRecipe, error) {
	var d dish
	if err := r.gather(&d, ingredients); err != nil {
		return cooking.ResolvedRecipe{}, err
	}

	name := r.match(&d)
	res := cooking.ResolvedRecipe{
		Name:   name,
		Value:  d.cook,
		Crit:   d.crit,
		Effect: d.effect,
	}
	switch res.Name {
	case cooking.FairyTonic, cooking.DubiousFood, cooking.RockHardFood:
		res.Price = cooking.MinPrice
	default:
		res.Price = r.price(&d)
	}

	res.ValueWithCrit = res.Value
	if res.Name != cooking.DubiousFood && res.Name != cooking.RockHardFood {
		if res.Crit < cooking.MaxCrit || res.Effect != cooking.EffectNone {
			res.ValueWithCrit = min(res.Value+cooking.CritBonus, cooking.MaxValue)
		}
	}
	res.CritDiffers = res.ValueWithCrit != res.Value
	return res, nil
}

// gather expands ids and accumulates the base values.
func (r *Resolver) gather(d *dish, ingredients []cooking.GroupID) error {
	if len(ingredients) == 0 || len(ingredients) > cooking.NumIngrSlots {
		return fmt.Errorf("got %d: %w", len(ingredients), ErrIngredientCount)
	}
	d.n = len(ingredients)

	effectSet := false
	for i, id := range ingredients {
		g, ok := r.cat.Group(id)
		if !ok {
			return &CatalogError{Group: id, Reason: "group not in catalog"}
		}
		d.ids[i] = id
		d.groups[i] = g

		if g.Effect != cooking.EffectNone {
			// conflicting effects collapse to none for good
			if !effectSet {
				d.effect = g.Effect
				effectSet = true
			} else if d.effect != cooking.EffectNone && g.Effect != d.effect {
				d.effect = cooking.EffectNone
			}
		}
		if g.Effect == cooking.EffectLifeMaxUp {
			d.dubious += g.HP + 4
		}
		d.cook += g.HP * 2
		if d.firstOccurrence(i) {
			d.cook += g.BoostHP
			d.crit += g.BoostCrit
			d.unique++
		}
	}

	d.cook = clamp(d.cook, 0, cooking.MaxValue)
	d.crit = clamp(d.crit, 0, cooking.MaxCrit)
	d.dubious = clamp(d.dubious, cooking.MinDubious, cooking.MaxValue)
	return nil
}

func (d *dish) firstOccurrence(i int) bool {
	for j := 0; j < i; j++ {
		if d.ids[j] == d.ids[i] {
			return false
		}
	}
	return true
}

// match finds the first rule that fits and applies it to d, returning the
// dish name. A dish with one distinct ingredient is only tried against the
// single rules, any other dish only against the multi rules.
func (r *Resolver) match(d *dish) string {
	multi := d.unique != 1
	rules := r.cat.MultiRules
	if !multi {
		rules = r.cat.SingleRules
	}

	for i := range rules {
		rule := &rules[i]
		if !d.fits(rule) {
			continue
		}

		name := rule.Output
		prefixed := name != cooking.FairyTonic
		if multi && (name == cooking.DubiousFood || name == cooking.RockHardFood) {
			prefixed = false
		}
		if prefixed {
			name = d.effect.Prefix() + name
		}
		if name == cooking.Elixir {
			name = cooking.DubiousFood
		}
		switch name {
		case cooking.RockHardFood:
			d.cook = 1
		case cooking.DubiousFood:
			d.cook = d.dubious
		}

		d.cook += rule.HeartBonus
		if d.crit == cooking.MaxCrit && d.effect == cooking.EffectNone {
			d.cook += cooking.CritBonus
		}
		d.cook = clamp(d.cook, 0, cooking.MaxValue)
		return name
	}

	d.cook = d.dubious
	d.crit = 0
	d.effect = cooking.EffectNone
	return cooking.DubiousFood
}

// fits reports whether every matcher of rule claims a distinct ingredient.
// A claimed ingredient removes every instance of its group from the pool.
func (d *dish) fits(rule *cooking.Rule) bool {
	if rule.Unmatchable {
		return false
	}
	var used [cooking.NumIngrSlots]bool

	claim := func(i int) {
		for j := 0; j < d.n; j++ {
			if d.ids[j] == d.ids[i] {
				used[j] = true
			}
		}
	}

	for _, alts := range rule.Actors {
		if len(alts) == 0 {
			continue
		}
		found := false
	actors:
		for _, want := range alts {
			for i := 0; i < d.n; i++ {
				if !used[i] && d.ids[i] == want {
					claim(i)
					found = true
					break actors
				}
			}
		}
		if !found {
			return false
		}
	}

	for _, alts := range rule.Tags {
		if len(alts) == 0 {
			continue
		}
		found := false
	tags:
		for _, want := range alts {
			for i := 0; i < d.n; i++ {
				if !used[i] && d.groups[i].Tags.Has(want) {
					claim(i)
					found = true
					break tags
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
