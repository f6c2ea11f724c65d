package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/rxfn/internal/ir"
)

// marshalState converts a snapshot to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so the stored text hashes deterministically.
func marshalState(state ir.IRObject) (string, error) {
	data, err := ir.MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	return string(data), nil
}

// unmarshalState parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalState(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return obj, nil
}
