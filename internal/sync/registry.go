package sync

import (
	"slices"
	stdsync "sync"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

// DefaultMissionTypes is the static catalog offered by the filter UI before
// any snapshot has been seen.
var DefaultMissionTypes = []string{
	"Alchemy",
	"Assassination",
	"Capture",
	"Defense",
	"Disruption",
	"Excavation",
	"Extermination",
	"Hijack",
	"Interception",
	"Mobile Defense",
	"Rescue",
	"Sabotage",
	"Skirmish",
	"Spy",
	"Survival",
	"Void Armageddon",
	"Void Cascade",
	"Void Flood",
	"Volatile",
}

// MissionTypeRegistry accumulates every mission type seen in snapshots on
// top of a static catalog. Safe for concurrent use.
type MissionTypeRegistry struct {
	mu      stdsync.Mutex
	known   map[string]struct{}
	current []string
}

// NewMissionTypeRegistry creates a registry seeded with catalog.
func NewMissionTypeRegistry(catalog []string) *MissionTypeRegistry {
	r := &MissionTypeRegistry{known: make(map[string]struct{}, len(catalog))}

	for _, mt := range catalog {
		r.add(mt)
	}

	r.current = r.sorted()

	return r
}

// Observe merges the mission types of one snapshot and returns the sorted
// union. changed is false when the union is value-equal to the previous
// one, in which case callers should not republish it.
func (r *MissionTypeRegistry) Observe(missionTypes []string) (types []string, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, mt := range missionTypes {
		r.add(mt)
	}

	next := r.sorted()
	if slices.Equal(next, r.current) {
		return slices.Clone(r.current), false
	}

	r.current = next

	return slices.Clone(next), true
}

// Types returns the current sorted union.
func (r *MissionTypeRegistry) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.current)
}

func (r *MissionTypeRegistry) add(mt string) {
	mt = fissure.NormalizeMissionType(mt)
	if mt == "" {
		return
	}

	r.known[mt] = struct{}{}
}

func (r *MissionTypeRegistry) sorted() []string {
	out := make([]string, 0, len(r.known))
	for mt := range r.known {
		out = append(out, mt)
	}

	slices.Sort(out)

	return out
}
