package viewapi

import (
	"time"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
	isync "github.com/tonimelisma/fissurewatch/internal/sync"
)

// CriteriaJSON is the wire form of fissure.Criteria.
type CriteriaJSON struct {
	MissionTypes []string `json:"missionTypes"`
	HardMode     string   `json:"hardMode"`
}

// NewCriteriaJSON converts criteria to the wire form. No mission types
// encodes as an empty array, never null.
func NewCriteriaJSON(c fissure.Criteria) CriteriaJSON {
	types := c.MissionTypes
	if types == nil {
		types = []string{}
	}

	return CriteriaJSON{MissionTypes: types, HardMode: c.HardMode.String()}
}

// criteria parses the wire form back into normalized criteria.
func (c CriteriaJSON) criteria() (fissure.Criteria, error) {
	hard, err := fissure.ParseHardMode(c.HardMode)
	if err != nil {
		return fissure.Criteria{}, err
	}

	return fissure.NewCriteria(hard, c.MissionTypes...), nil
}

// View is what a client renders: the active session's snapshot plus the
// banner and loading state.
type View struct {
	SessionID    string            `json:"sessionId,omitempty"`
	Criteria     CriteriaJSON      `json:"criteria"`
	Pending      CriteriaJSON      `json:"pending"`
	Status       string            `json:"status"`
	Fissures     []fissure.Fissure `json:"fissures"`
	Loading      bool              `json:"loading"`
	HasUpdate    bool              `json:"hasUpdate"`
	Error        string            `json:"error,omitempty"`
	RetryInMS    int64             `json:"retryInMs,omitempty"`
	MissionTypes []string          `json:"missionTypes"`
	UpdatedAt    *time.Time        `json:"updatedAt,omitempty"`
}

// StatusView is the body of GET /api/status.
type StatusView struct {
	Status       string     `json:"status"`
	Since        time.Time  `json:"since"`
	LastError    string     `json:"lastError,omitempty"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	Sessions     int64      `json:"sessions"`
	Polls        int64      `json:"polls"`
	Changes      int64      `json:"changes"`
	Errors       int64      `json:"errors"`
}

// StreamMessage is one frame on /api/stream.
type StreamMessage struct {
	Type string `json:"type"`
	View *View  `json:"view,omitempty"`
}

// Stream message types.
const (
	msgSnapshot = "snapshot"
	msgUpdate   = "update"
)

// viewState folds the engine's Updates into the client-facing view. The
// "has update" banner is raised by a changed response, lowered by an
// explicit dismiss, and reset whenever a new session starts, since a new
// session means the filter changed.
type viewState struct {
	last      isync.Update
	seen      bool
	hasUpdate bool
}

func (s *viewState) apply(u isync.Update) {
	if s.seen && u.SessionID != s.last.SessionID {
		s.hasUpdate = false
	}

	if u.Changed {
		s.hasUpdate = true
	}

	s.last = u
	s.seen = true
}

func (s *viewState) view(status string, pending fissure.Criteria, missionTypes []string) *View {
	v := &View{
		Criteria:     NewCriteriaJSON(s.last.Criteria),
		Pending:      NewCriteriaJSON(pending),
		Status:       status,
		Fissures:     s.last.Fissures,
		HasUpdate:    s.hasUpdate,
		MissionTypes: missionTypes,
	}

	if v.Fissures == nil {
		v.Fissures = []fissure.Fissure{}
	}

	if v.MissionTypes == nil {
		v.MissionTypes = []string{}
	}

	if !s.seen {
		v.Criteria = NewCriteriaJSON(pending)
		v.Loading = true

		return v
	}

	v.SessionID = s.last.SessionID
	v.Loading = s.last.Loading
	v.Error = s.last.ErrorMessage()
	v.RetryInMS = s.last.RetryIn.Milliseconds()
	v.Status = s.last.Status.String()

	at := s.last.At
	v.UpdatedAt = &at

	return v
}
