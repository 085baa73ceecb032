package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/poolproxy/internal/ir"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so identical records persist as identical
// bytes.
func marshalRecord(v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// marshalFunds converts attached coins to JSON TEXT. An empty list is
// stored as "[]".
func marshalFunds(funds []ir.Coin) (string, error) {
	if len(funds) == 0 {
		return "[]", nil
	}
	return marshalRecord(funds)
}

// unmarshalRecord parses JSON TEXT into v.
func unmarshalRecord(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

// unmarshalFunds parses JSON TEXT to a coin list.
func unmarshalFunds(data string) ([]ir.Coin, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var funds []ir.Coin
	if err := unmarshalRecord(data, &funds); err != nil {
		return nil, fmt.Errorf("unmarshal funds: %w", err)
	}
	return funds, nil
}
