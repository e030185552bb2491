package message

import (
	"encoding/json"
	"fmt"
)

/* Message is the unit of exchange between the two zones
 * Uses value semantics: once validated it is never mutated, only copied or serialized
 */
type Message struct {
	Variant   Variant
	ID        string
	Project   string
	TestID    string
	Area      string // permissive schema only
	Timestamp string // literal as received, format depends on Variant
	Status    string
	Data      json.RawMessage
}

// strictWire is the corporate wire form
type strictWire struct {
	ID        string          `json:"ID"`
	Project   string          `json:"Project"`
	TestID    string          `json:"Test ID"`
	Timestamp string          `json:"Timestamp"`
	Status    string          `json:"Test Status"`
	Data      json.RawMessage `json:"Data"`
}

// permissiveWire is the low-side wire form
type permissiveWire struct {
	ID      string          `json:"ID"`
	Project string          `json:"Project"`
	TestID  string          `json:"TestID"`
	Area    string          `json:"Area"`
	Status  string          `json:"Status"`
	Date    string          `json:"Date"`
	Data    json.RawMessage `json:"Data"`
}

// MarshalJSON encodes the message with the wire keys of its variant
func (m Message) MarshalJSON() ([]byte, error) {
	data := m.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	switch m.Variant {
	case Strict:
		return json.Marshal(strictWire{
			ID:        m.ID,
			Project:   m.Project,
			TestID:    m.TestID,
			Timestamp: m.Timestamp,
			Status:    m.Status,
			Data:      data,
		})
	case Permissive:
		return json.Marshal(permissiveWire{
			ID:      m.ID,
			Project: m.Project,
			TestID:  m.TestID,
			Area:    m.Area,
			Status:  m.Status,
			Date:    m.Timestamp,
			Data:    data,
		})
	default:
		return nil, fmt.Errorf("marshaling message %s: invalid schema variant: %d", m.ID, m.Variant)
	}
}

// DateParts slices year, month and day out of the literal timestamp.
// No calendar validation happens here; Validate already did it.
func (m Message) DateParts() (year, month, day string, err error) {
	ts := m.Timestamp
	switch m.Variant {
	case Strict:
		// 2006-01-02...
		if len(ts) < 10 {
			return "", "", "", fmt.Errorf("timestamp too short for date parts: %q", ts)
		}
		return ts[0:4], ts[5:7], ts[8:10], nil
	case Permissive:
		// 02012006T15:04:05
		if len(ts) < 8 {
			return "", "", "", fmt.Errorf("date too short for date parts: %q", ts)
		}
		return ts[4:8], ts[2:4], ts[0:2], nil
	default:
		return "", "", "", fmt.Errorf("invalid schema variant: %d", m.Variant)
	}
}
