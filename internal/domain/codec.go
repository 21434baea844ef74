package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// snapshotIndent matches the four-space indentation of the cache files
// written by earlier versions of the forwarder.
const snapshotIndent = "    "

// EncodeSnapshot renders a snapshot as an indented JSON array. A nil or empty
// snapshot encodes as "[]".
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	if len(s) == 0 {
		return []byte("[]\n"), nil
	}
	data, err := json.MarshalIndent(s, "", snapshotIndent)
	if err != nil {
		return nil, fmt.Errorf("EncodeSnapshot: marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeSnapshot parses a persisted snapshot of the given kind. Empty input
// and a JSON null both decode to an empty snapshot.
func DecodeSnapshot(kind Kind, data []byte) (Snapshot, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("DecodeSnapshot: unknown record kind %q", kind)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Snapshot{}, nil
	}
	snap, err := info.decode(trimmed)
	if err != nil {
		return nil, fmt.Errorf("DecodeSnapshot: %s: %w", kind, err)
	}
	return snap, nil
}

func decodeAs[T Record](data []byte) (Snapshot, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	snap := make(Snapshot, 0, len(items))
	for _, item := range items {
		snap = append(snap, item)
	}
	return snap, nil
}
