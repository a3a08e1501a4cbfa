package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rsned/cookdb/internal/cooking/multichoose"
	"github.com/rsned/cookdb/pkg/cooking"
)

// ValidationError collects every inconsistency found in a catalog.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

func (e *ValidationError) errorf(format string, args ...any) {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
}

func (e *ValidationError) warnf(format string, args ...any) {
	e.Warnings = append(e.Warnings, fmt.Sprintf(format, args...))
}

// ErrInvalidJSON is returned when the catalog is not well-formed JSON.
var ErrInvalidJSON = errors.New("invalid catalog JSON")

// Parse decodes and validates a catalog document. On any inconsistency it
// returns a *ValidationError listing all of them.
func Parse(data []byte) (*Catalog, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	ve := &ValidationError{}

	cat := &Catalog{
		Groups:   []cooking.Group{{ID: cooking.NoGroup, Name: "<none>"}},
		Digest:   digest(data),
		byName:   make(map[string]cooking.GroupID),
		byActor:  make(map[string]cooking.GroupID),
		tagIndex: make(map[string]cooking.Tag),
	}

	mults := root.Get("multipliers").Array()
	if len(mults) != cooking.NumIngrSlots {
		ve.errorf("multipliers: want %d entries, got %d", cooking.NumIngrSlots, len(mults))
	}
	for i, m := range mults {
		if i >= cooking.NumIngrSlots {
			break
		}
		f := m.Float()
		if f <= 0 || f > math.MaxFloat32 {
			ve.errorf("multipliers[%d]: %v is not a positive single-precision value", i, m.Raw)
		}
		cat.Multipliers[i] = float32(f)
	}

	i := 0
	root.Get("groups").ForEach(func(_, v gjson.Result) bool {
		cat.parseGroup(i, v, ve)
		i++
		return true
	})
	if len(cat.Groups) < 2 {
		ve.errorf("groups: catalog declares no groups")
	}
	if n := len(cat.Groups); n >= 2 {
		if _, err := multichoose.NewChecked(n); err != nil {
			ve.errorf("groups: %d groups exceed the rank space (at most %d): %v",
				n-1, multichoose.MaxGroups-1, err)
		}
	}

	i = 0
	root.Get("single_rules").ForEach(func(_, v gjson.Result) bool {
		if r, ok := cat.parseRule(fmt.Sprintf("single_rules[%d]", i), v, true, ve); ok {
			cat.SingleRules = append(cat.SingleRules, r)
		}
		i++
		return true
	})
	i = 0
	root.Get("multi_rules").ForEach(func(_, v gjson.Result) bool {
		if r, ok := cat.parseRule(fmt.Sprintf("multi_rules[%d]", i), v, false, ve); ok {
			cat.MultiRules = append(cat.MultiRules, r)
		}
		i++
		return true
	})
	if len(cat.SingleRules) == 0 {
		ve.warnf("single_rules: none declared, every single-ingredient dish is dubious")
	}

	cat.lowPrice, cat.hasLow = cat.tagIndex[LowPriceTag]

	if len(ve.Errors) > 0 {
		return nil, ve
	}
	cat.Warnings = ve.Warnings
	return cat, nil
}

func (c *Catalog) parseGroup(i int, v gjson.Result, ve *ValidationError) {
	where := fmt.Sprintf("groups[%d]", i)
	g := cooking.Group{
		ID:   cooking.GroupID(len(c.Groups)),
		Name: strings.TrimSpace(v.Get("name").String()),
	}
	if g.Name == "" {
		ve.errorf("%s: name is required", where)
	} else {
		where = fmt.Sprintf("group %q", g.Name)
		key := strings.ToLower(g.Name)
		if _, dup := c.byName[key]; dup {
			ve.errorf("%s: duplicate group name", where)
		}
		c.byName[key] = g.ID
	}

	v.Get("actors").ForEach(func(_, a gjson.Result) bool {
		name := a.String()
		key := strings.ToLower(name)
		if prev, dup := c.byActor[key]; dup {
			ve.errorf("%s: actor %q already belongs to group %d", where, name, prev)
		}
		c.byActor[key] = g.ID
		g.Actors = append(g.Actors, name)
		return true
	})
	if len(g.Actors) == 0 {
		ve.warnf("%s: no actors, rules can only reach it by tag", where)
	}

	buy, sell := v.Get("buy_price").Int(), v.Get("sell_price").Int()
	if buy < 0 || buy > math.MaxUint32 {
		ve.errorf("%s: buy_price %d out of range", where, buy)
	}
	if sell < 0 || sell > math.MaxUint32 {
		ve.errorf("%s: sell_price %d out of range", where, sell)
	}
	g.BuyPrice, g.SellPrice = uint32(buy), uint32(sell)

	g.HP = int32(v.Get("hp").Int())
	g.BoostHP = int32(v.Get("boost_hp").Int())
	g.BoostCrit = int32(v.Get("boost_crit").Int())
	if g.BoostCrit < 0 || g.BoostCrit > cooking.MaxCrit {
		ve.errorf("%s: boost_crit %d outside 0-%d", where, g.BoostCrit, cooking.MaxCrit)
	}

	effect, ok := cooking.ParseEffect(v.Get("effect").String())
	if !ok {
		ve.errorf("%s: unknown effect %q", where, v.Get("effect").String())
	}
	g.Effect = effect

	v.Get("tags").ForEach(func(_, t gjson.Result) bool {
		tag, ok := c.internTag(t.String())
		if !ok {
			ve.errorf("%s: tag %q exceeds the %d tag limit", where, t.String(), cooking.MaxTags)
			return false
		}
		g.Tags.Add(tag)
		return true
	})

	c.Groups = append(c.Groups, g)
}

func (c *Catalog) internTag(name string) (cooking.Tag, bool) {
	if t, ok := c.tagIndex[name]; ok {
		return t, true
	}
	if len(c.Tags) >= cooking.MaxTags {
		return 0, false
	}
	t := cooking.Tag(len(c.Tags))
	c.Tags = append(c.Tags, name)
	c.tagIndex[name] = t
	return t, true
}

// parseRule decodes one rule. Single rules list their alternatives flat;
// multi rules list one alternative group per matcher.
func (c *Catalog) parseRule(where string, v gjson.Result, single bool, ve *ValidationError) (cooking.Rule, bool) {
	r := cooking.Rule{
		Output:     v.Get("output").String(),
		HeartBonus: int32(v.Get("hb").Int()),
	}
	if r.Output == "" {
		ve.errorf("%s: output is required", where)
		return r, false
	}
	where = fmt.Sprintf("%s (%s)", where, r.Output)
	ok := true

	actors, deadActors := matcherGroups(v.Get("actors"), single)
	tags, deadTags := matcherGroups(v.Get("tags"), single)
	if deadActors || deadTags {
		r.Unmatchable = true
		ve.warnf("%s: a matcher lists only empty alternatives, the rule never matches", where)
	}

	for _, names := range actors {
		var alts []cooking.GroupID
		for _, n := range names {
			id, found := c.Lookup(n)
			if !found {
				ve.errorf("%s: unknown actor %q", where, n)
				ok = false
				continue
			}
			alts = append(alts, id)
		}
		r.Actors = append(r.Actors, alts)
	}
	for _, names := range tags {
		var alts []cooking.Tag
		for _, n := range names {
			t, found := c.tagIndex[n]
			if !found {
				ve.errorf("%s: unknown tag %q", where, n)
				ok = false
				continue
			}
			alts = append(alts, t)
		}
		r.Tags = append(r.Tags, alts)
	}
	return r, ok
}

// matcherGroups flattens a matcher list into alternative groups. An
// alternative may itself be wrapped in a one-element array. dead reports a
// group that lists entries which are all empty wrappers; such a group can
// never be satisfied, unlike an empty group which is skipped.
func matcherGroups(v gjson.Result, single bool) (groups [][]string, dead bool) {
	if !v.Exists() {
		return nil, false
	}
	if single {
		alts, ok := alternatives(v)
		if !ok {
			return nil, true
		}
		if len(alts) == 0 {
			return nil, false
		}
		return [][]string{alts}, false
	}
	v.ForEach(func(_, g gjson.Result) bool {
		alts, ok := alternatives(g)
		if !ok {
			dead = true
		}
		groups = append(groups, alts)
		return true
	})
	return groups, dead
}

// alternatives lists the names in v, skipping empty wrappers. ok is false
// when v has entries but none of them names anything.
func alternatives(v gjson.Result) (out []string, ok bool) {
	entries := 0
	v.ForEach(func(_, a gjson.Result) bool {
		entries++
		if a.IsArray() {
			arr := a.Array()
			if len(arr) == 0 {
				return true
			}
			a = arr[0]
		}
		out = append(out, a.String())
		return true
	})
	return out, entries == 0 || len(out) > 0
}
