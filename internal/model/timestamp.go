package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// legacyLayouts are the offset-less ISO 8601 forms written by earlier
// releases of the tool. They are read as local time.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 or an offset-less ISO 8601 local time
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseOptional(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return &t, nil
}

func parseRequired(field string, s string) (time.Time, error) {
	t, err := parseOptional(field, &s)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}

// UnmarshalJSON reads records written by this and earlier releases
func (r *ScriptRecord) UnmarshalJSON(data []byte) error {
	type plain ScriptRecord
	aux := struct {
		*plain
		CreatedAt      string  `json:"created"`
		ModifiedAt     string  `json:"modified"`
		LastExecutedAt *string `json:"last_execution"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if r.CreatedAt, err = parseRequired("created", aux.CreatedAt); err != nil {
		return err
	}
	if r.ModifiedAt, err = parseRequired("modified", aux.ModifiedAt); err != nil {
		return err
	}
	if r.LastExecutedAt, err = parseOptional("last_execution", aux.LastExecutedAt); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON keeps the source body, which the promoted ScriptRecord
// decoder would drop
func (s *Script) UnmarshalJSON(data []byte) error {
	if err := s.ScriptRecord.UnmarshalJSON(data); err != nil {
		return err
	}
	var body struct {
		Source string `json:"code"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	s.Source = body.Source
	return nil
}

// UnmarshalJSON reads tasks written by this and earlier releases
func (t *ScheduledTask) UnmarshalJSON(data []byte) error {
	type plain ScheduledTask
	aux := struct {
		*plain
		CreatedAt string  `json:"created"`
		LastRun   *string `json:"last_run"`
	}{plain: (*plain)(t)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if t.CreatedAt, err = parseRequired("created", aux.CreatedAt); err != nil {
		return err
	}
	if t.LastRun, err = parseOptional("last_run", aux.LastRun); err != nil {
		return err
	}
	return nil
}
