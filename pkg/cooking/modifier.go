package cooking

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WeaponModifierSet is the 9-bit modifier mask carried in a record's price field.
type WeaponModifierSet uint16

const (
	ModAttackUp WeaponModifierSet = 1 << iota
	ModDurabilityUp
	ModCriticalHit
	ModLongThrow
	ModMultiShot
	ModZoom
	ModQuickShot
	ModSurfUp
	ModGuardUp

	ModAll WeaponModifierSet = 1<<9 - 1
)

var modifierNames = []struct {
	mod  WeaponModifierSet
	name string
}{
	{ModAttackUp, "AttackUp"},
	{ModDurabilityUp, "DurabilityUp"},
	{ModCriticalHit, "CriticalHit"},
	{ModLongThrow, "LongThrow"},
	{ModMultiShot, "MultiShot"},
	{ModZoom, "Zoom"},
	{ModQuickShot, "QuickShot"},
	{ModSurfUp, "SurfUp"},
	{ModGuardUp, "GuardUp"},
}

// ParseWeaponModifiers builds a set from modifier names (case-insensitive).
func ParseWeaponModifiers(names []string) (WeaponModifierSet, error) {
	var s WeaponModifierSet
	for _, n := range names {
		found := false
		for _, m := range modifierNames {
			if strings.EqualFold(m.name, n) {
				s |= m.mod
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown weapon modifier %q", n)
		}
	}
	return s, nil
}

// Contains reports whether every modifier in other is in s.
func (s WeaponModifierSet) Contains(other WeaponModifierSet) bool {
	return s&other == other
}

// Names lists the modifiers in s in bit order.
func (s WeaponModifierSet) Names() []string {
	var out []string
	for _, m := range modifierNames {
		if s&m.mod != 0 {
			out = append(out, m.name)
		}
	}
	return out
}

func (s WeaponModifierSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// MarshalJSON encodes the set as a list of names.
func (s WeaponModifierSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts either a list of names or the raw bit mask.
func (s *WeaponModifierSet) UnmarshalJSON(data []byte) error {
	var mask uint16
	if err := json.Unmarshal(data, &mask); err == nil {
		if WeaponModifierSet(mask)&^ModAll != 0 {
			return fmt.Errorf("weapon modifier mask %#x has unknown bits", mask)
		}
		*s = WeaponModifierSet(mask)
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("weapon modifiers must be a list of names or a mask: %w", err)
	}
	set, err := ParseWeaponModifiers(names)
	if err != nil {
		return err
	}
	*s = set
	return nil
}
