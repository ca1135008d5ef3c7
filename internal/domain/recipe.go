package domain

// Unit is the measure an ingredient amount is expressed in.
type Unit string

const (
	UnitVolumeML   Unit = "volume-ml"
	UnitCount      Unit = "count"
	UnitMassGrams  Unit = "mass-grams"
	UnitTablespoon Unit = "tablespoon"
)

// UnitFromToken maps a unit token from user text to a Unit.
// Unknown or empty tokens map to UnitCount.
func UnitFromToken(token string) Unit {
	switch token {
	case "ml":
		return UnitVolumeML
	case "g":
		return UnitMassGrams
	case "tbsp":
		return UnitTablespoon
	default:
		return UnitCount
	}
}

// ParseUnit decodes a stored unit name. Unrecognized names decode as UnitCount.
func ParseUnit(name string) Unit {
	switch Unit(name) {
	case UnitVolumeML, UnitMassGrams, UnitTablespoon:
		return Unit(name)
	default:
		return UnitCount
	}
}

type Amount struct {
	Unit  Unit   `bson:"unit" json:"unit"`
	Value uint64 `bson:"value" json:"value"`
}

type Ingredient struct {
	Name   string  `bson:"name" json:"name"`
	Amount *Amount `bson:"amount,omitempty" json:"amount,omitempty"`
}

// Recipe owns its ingredient list by value.
type Recipe struct {
	Name        string       `bson:"name" json:"name"`
	Ingredients []Ingredient `bson:"ingredients" json:"ingredients"`
}
