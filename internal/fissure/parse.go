package fissure

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// responseShape identifies which of the two accepted response layouts a
// body uses.
type responseShape int

const (
	shapeUnknown responseShape = iota
	shapeList                  // bare JSON array of fissures
	shapeEnvelope              // {"fissures": [...], "fissureIds": [...]}
)

func (s responseShape) String() string {
	switch s {
	case shapeList:
		return "list"
	case shapeEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// envelopeResponse mirrors the object-shaped response. Pointer fields
// distinguish an absent key from an empty array.
type envelopeResponse struct {
	Fissures   *[]Fissure `json:"fissures"`
	FissureIDs *[]string  `json:"fissureIds"` //nolint:tagliatelle // wire name
}

// detectShape classifies a body by its first significant byte.
func detectShape(body []byte) responseShape {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return shapeUnknown
	}

	switch trimmed[0] {
	case '[':
		return shapeList
	case '{':
		return shapeEnvelope
	default:
		return shapeUnknown
	}
}

// ParseSnapshot decodes a response body in either accepted layout into a
// Snapshot. When the envelope omits fissureIds the ids are derived from the
// fissures in order. Any other layout returns ErrMalformedResponse.
func ParseSnapshot(body []byte) (*Snapshot, error) {
	shape := detectShape(body)

	switch shape {
	case shapeList:
		var list []Fissure
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrMalformedResponse, shape, err)
		}

		return &Snapshot{Fissures: list, IDs: idsOf(list)}, nil

	case shapeEnvelope:
		var env envelopeResponse
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %w", ErrMalformedResponse, shape, err)
		}

		if env.Fissures == nil {
			return nil, fmt.Errorf("%w: envelope has no fissures key", ErrMalformedResponse)
		}

		snap := &Snapshot{Fissures: *env.Fissures}
		if env.FissureIDs != nil {
			snap.IDs = *env.FissureIDs
		} else {
			snap.IDs = idsOf(snap.Fissures)
		}

		if snap.Fissures == nil {
			snap.Fissures = []Fissure{}
		}

		if snap.IDs == nil {
			snap.IDs = []string{}
		}

		return snap, nil

	default:
		return nil, fmt.Errorf("%w: body is neither a list nor an envelope", ErrMalformedResponse)
	}
}

// idsOf returns the ids of the given fissures in order.
func idsOf(list []Fissure) []string {
	ids := make([]string, 0, len(list))
	for i := range list {
		ids = append(ids, list[i].ID)
	}

	return ids
}
