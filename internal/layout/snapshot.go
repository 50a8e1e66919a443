package layout

import (
	"sort"
	"time"
)

// Snapshot is an immutable, JSON-serialisable copy of the whole layout state.
//
// It satisfies Reader, so helpers and guards can be evaluated against it.
// Callers must not mutate the maps it holds; Export hands every caller its own copy.
type Snapshot struct {
	ExportedAt time.Time                  `json:"exported_at"`
	ClockState Clock                      `json:"clock"`
	Entities   map[Kind]map[string]Entity `json:"entities"`
}

// Get returns a copy of one entity from the snapshot.
func (s Snapshot) Get(kind Kind, id string) (Entity, bool) {
	e, ok := s.Entities[kind][id]
	if !ok {
		return Entity{}, false
	}
	return e.DeepCopy(), true
}

// List returns copies of every entity of a kind, sorted by id.
func (s Snapshot) List(kind Kind) []Entity {
	bucket := s.Entities[kind]
	out := make([]Entity, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of entities of a kind.
func (s Snapshot) Count(kind Kind) int {
	return len(s.Entities[kind])
}

// Clock returns the clock as it was at export time.
func (s Snapshot) Clock() Clock {
	return s.ClockState
}

// EntityCount returns the number of entities across all kinds.
func (s Snapshot) EntityCount() int {
	n := 0
	for _, bucket := range s.Entities {
		n += len(bucket)
	}
	return n
}

// LocoPosition describes a locomotive that was moving at export time.
type LocoPosition struct {
	ID      string  `json:"id"`
	Block   string  `json:"block"`
	Speed   float64 `json:"speed"`
	Forward bool    `json:"forward"`
}

// BlockOccupancy describes an occupied block and its occupant.
type BlockOccupancy struct {
	ID     string `json:"id"`
	LocoID string `json:"loco_id"`
}

// SwitchPosition records the last reported position of a switch.
type SwitchPosition struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

// Summary is the operator-facing view used after an unexpected disconnect:
// what was moving, where, and which blocks were held.
type Summary struct {
	Clock          Clock            `json:"clock"`
	MovingLocos    []LocoPosition   `json:"moving_locomotives"`
	OccupiedBlocks []BlockOccupancy `json:"occupied_blocks"`
	Switches       []SwitchPosition `json:"switches"`
}

// Summary extracts moving locomotives, occupied blocks and switch positions.
// Slices are sorted by id and never nil.
func (s Snapshot) Summary() Summary {
	sum := Summary{
		Clock:          s.ClockState,
		MovingLocos:    []LocoPosition{},
		OccupiedBlocks: []BlockOccupancy{},
		Switches:       []SwitchPosition{},
	}

	for _, lc := range s.List(KindLocomotive) {
		speed, _ := lc.Number(AttrSpeed)
		if speed <= 0 {
			continue
		}
		forward := true
		if _, ok := lc.Attr(AttrDirection); ok {
			forward = lc.Bool(AttrDirection)
		}
		sum.MovingLocos = append(sum.MovingLocos, LocoPosition{
			ID:      lc.ID,
			Block:   lc.Text(AttrBlockID),
			Speed:   speed,
			Forward: forward,
		})
	}

	for _, bk := range s.List(KindBlock) {
		if !bk.Bool(AttrOccupied) {
			continue
		}
		sum.OccupiedBlocks = append(sum.OccupiedBlocks, BlockOccupancy{
			ID:     bk.ID,
			LocoID: bk.Text(AttrLocoID),
		})
	}

	for _, sw := range s.List(KindSwitch) {
		sum.Switches = append(sum.Switches, SwitchPosition{
			ID:    sw.ID,
			State: sw.Text(AttrState),
		})
	}

	return sum
}
