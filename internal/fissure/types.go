package fissure

// Fissure is a single entry of the remote collection. Values are immutable
// snapshot items; identity is ID.
type Fissure struct {
	ID          string `json:"id"`
	MissionType string `json:"missionType"`
	Node        string `json:"node"`
	Tier        string `json:"tier"`
	ETA         string `json:"eta"`
	Enemy       string `json:"enemy"`
	IsHard      bool   `json:"isHard"`
	IsStorm     bool   `json:"isStorm"`
	Expired     bool   `json:"expired"`
}

// Snapshot is the canonical shape of every server response: the ordered
// fissures plus the ids the server reports as current. Callers never see
// the raw response shape.
type Snapshot struct {
	Fissures []Fissure
	IDs      []string
}

// Len returns the number of fissures in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}

	return len(s.Fissures)
}

// MissionTypes returns the missionType of every fissure, in snapshot order.
// Duplicates are preserved.
func (s *Snapshot) MissionTypes() []string {
	if s == nil {
		return nil
	}

	out := make([]string, 0, len(s.Fissures))
	for i := range s.Fissures {
		out = append(out, s.Fissures[i].MissionType)
	}

	return out
}
