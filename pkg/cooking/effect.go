package cooking

import "fmt"

// Effect is a cook effect carried by an ingredient.
type Effect uint8

const (
	EffectNone Effect = iota
	EffectResistHot
	EffectResistCold
	EffectResistElectric
	EffectQuietness
	EffectGutsRecover
	EffectExGutsMaxUp
	EffectMovingSpeed
	EffectAttackUp
	EffectDefenseUp
	EffectFireproof
	EffectLifeMaxUp
)

var effectNames = [...]string{
	EffectNone:           "None",
	EffectResistHot:      "ResistHot",
	EffectResistCold:     "ResistCold",
	EffectResistElectric: "ResistElectric",
	EffectQuietness:      "Quietness",
	EffectGutsRecover:    "GutsRecover",
	EffectExGutsMaxUp:    "ExGutsMaxUp",
	EffectMovingSpeed:    "MovingSpeed",
	EffectAttackUp:       "AttackUp",
	EffectDefenseUp:      "DefenseUp",
	EffectFireproof:      "Fireproof",
	EffectLifeMaxUp:      "LifeMaxUp",
}

var effectPrefixes = [...]string{
	EffectResistHot:      "Chilly ",
	EffectResistCold:     "Spicy ",
	EffectResistElectric: "Electro ",
	EffectQuietness:      "Sneaky ",
	EffectGutsRecover:    "Energizing ",
	EffectExGutsMaxUp:    "Enduring ",
	EffectMovingSpeed:    "Hasty ",
	EffectAttackUp:       "Mighty ",
	EffectDefenseUp:      "Tough ",
	EffectFireproof:      "Fireproof ",
	EffectLifeMaxUp:      "Hearty ",
}

// ParseEffect converts a catalog effect name. An empty name is EffectNone.
func ParseEffect(s string) (Effect, bool) {
	if s == "" {
		return EffectNone, true
	}
	for i, name := range effectNames {
		if name == s {
			return Effect(i), true
		}
	}
	return EffectNone, false
}

func (e Effect) String() string {
	if int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("Effect(%d)", uint8(e))
}

// Prefix returns the dish name prefix for the effect, including the trailing space.
func (e Effect) Prefix() string {
	if int(e) < len(effectPrefixes) {
		return effectPrefixes[e]
	}
	return ""
}

// MarshalText encodes the effect by name.
func (e Effect) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText decodes an effect name.
func (e *Effect) UnmarshalText(text []byte) error {
	v, ok := ParseEffect(string(text))
	if !ok {
		return fmt.Errorf("unknown effect %q", text)
	}
	*e = v
	return nil
}
