package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/sequent/internal/model"
)

// Sequencing blocks and objective lists are stored as JSON TEXT columns.
// Struct-based marshaling keeps field order fixed, so equal values always
// produce identical column text (stable golden traces, cheap diffing).

// marshalSequencing converts a sequencing block to JSON TEXT for storage.
func marshalSequencing(seq model.SequencingInfo) (string, error) {
	data, err := json.Marshal(seq)
	if err != nil {
		return "", fmt.Errorf("marshal sequencing: %w", err)
	}
	return string(data), nil
}

// unmarshalSequencing parses a stored sequencing block.
func unmarshalSequencing(data string) (model.SequencingInfo, error) {
	var seq model.SequencingInfo
	if data == "" {
		return seq, nil
	}
	if err := json.Unmarshal([]byte(data), &seq); err != nil {
		return seq, fmt.Errorf("unmarshal sequencing: %w", err)
	}
	return seq, nil
}

// marshalObjectives converts an objective list to JSON TEXT for storage.
func marshalObjectives(objs []model.Objective) (string, error) {
	if objs == nil {
		objs = []model.Objective{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		return "", fmt.Errorf("marshal objectives: %w", err)
	}
	return string(data), nil
}

// unmarshalObjectives parses a stored objective list.
func unmarshalObjectives(data string) ([]model.Objective, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var objs []model.Objective
	if err := json.Unmarshal([]byte(data), &objs); err != nil {
		return nil, fmt.Errorf("unmarshal objectives: %w", err)
	}
	return objs, nil
}

// formatTime renders a timestamp for a TEXT column.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a TEXT column timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
