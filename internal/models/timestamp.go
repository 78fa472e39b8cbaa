package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the publishedAt forms found in stored records, most
// specific first. Older generators wrote a bare date.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses a stored publication time. Zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("models: unrecognized timestamp %q", s)
}

// timestamp decodes any of timestampLayouts, a JSON null or an empty string.
type timestamp struct{ time.Time }

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("models: publishedAt must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// UnmarshalJSON accepts bare dates in publishedAt.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	aux := struct {
		*plain
		PublishedAt timestamp `json:"publishedAt"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.PublishedAt = aux.PublishedAt.Time
	return nil
}

// UnmarshalJSON accepts bare dates in publishedAt.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	aux := struct {
		*plain
		PublishedAt timestamp `json:"publishedAt"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.PublishedAt = aux.PublishedAt.Time
	return nil
}
