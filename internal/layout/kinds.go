package layout

import (
	"fmt"
	"strings"
)

// Kind identifies an entity category by its controller code.
type Kind string

// The sixteen tracked kinds.
const (
	KindFeedback   Kind = "fb"
	KindBlock      Kind = "bk"
	KindSwitch     Kind = "sw"
	KindSignal     Kind = "sg"
	KindLocomotive Kind = "lc"
	KindRoute      Kind = "st"
	KindOutput     Kind = "co"
	KindCar        Kind = "car"
	KindOperator   Kind = "operator"
	KindSchedule   Kind = "sc"
	KindTour       Kind = "tour"
	KindLocation   Kind = "location"
	KindStage      Kind = "sb"
	KindText       Kind = "tx"
	KindBooster    Kind = "booster"
	KindVariable   Kind = "vr"
)

var kindNames = map[Kind]string{
	KindFeedback:   "feedback",
	KindBlock:      "block",
	KindSwitch:     "switch",
	KindSignal:     "signal",
	KindLocomotive: "locomotive",
	KindRoute:      "route",
	KindOutput:     "output",
	KindCar:        "car",
	KindOperator:   "operator",
	KindSchedule:   "schedule",
	KindTour:       "tour",
	KindLocation:   "location",
	KindStage:      "stage",
	KindText:       "text",
	KindBooster:    "booster",
	KindVariable:   "variable",
}

// AllKinds returns every tracked kind in a stable order.
func AllKinds() []Kind {
	return []Kind{
		KindFeedback, KindBlock, KindSwitch, KindSignal,
		KindLocomotive, KindRoute, KindOutput, KindCar,
		KindOperator, KindSchedule, KindTour, KindLocation,
		KindStage, KindText, KindBooster, KindVariable,
	}
}

// ParseKind accepts a controller code ("fb") or a long name ("feedback").
// Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if k := Kind(s); k.Valid() {
		return k, nil
	}
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of the tracked kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Name returns the long name of the kind, or the code itself when unknown.
func (k Kind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return string(k)
}

// Attribute names the controller reports and the helpers read.
const (
	AttrState     = "state"    // fb bool, sw position, sg/co textual state
	AttrOccupied  = "occ"      // bk
	AttrReserved  = "reserved" // bk
	AttrLocoID    = "locid"    // bk occupant
	AttrSpeed     = "V"        // lc
	AttrDirection = "dir"      // lc, true is forward
	AttrBlockID   = "blockid"  // lc current block
	AttrAspect    = "aspect"   // sg
	AttrStatus    = "status"   // st
)
