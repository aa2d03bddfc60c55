package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalNonceCheckpoint serializes a NonceCheckpoint to JSON bytes.
func MarshalNonceCheckpoint(cp *NonceCheckpoint) ([]byte, error) {
	if cp == nil {
		return nil, fmt.Errorf("cannot marshal nil NonceCheckpoint")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NonceCheckpoint to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalNonceCheckpoint deserializes a NonceCheckpoint from JSON bytes.
func UnmarshalNonceCheckpoint(data []byte) (*NonceCheckpoint, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var cp NonceCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to NonceCheckpoint: %w", err)
	}

	return &cp, nil
}

// MarshalRelayRecord serializes a RelayRecord to JSON bytes.
func MarshalRelayRecord(r *RelayRecord) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("cannot marshal nil RelayRecord")
	}
	if r.ID == "" {
		return nil, fmt.Errorf("cannot marshal RelayRecord without an ID")
	}

	return json.Marshal(r)
}

// UnmarshalRelayRecord deserializes a RelayRecord from JSON bytes.
func UnmarshalRelayRecord(data []byte) (*RelayRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var r RelayRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RelayRecord: %w", err)
	}

	return &r, nil
}
