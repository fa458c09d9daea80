package metadata

import "encoding/json"

// MarshalCanonical serializes m into the canonical full-record form stored
// alongside backend-native representations.
func MarshalCanonical(m *Metadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, ErrValidation.Wrap(err)
	}
	return data, nil
}

// UnmarshalCanonical parses the canonical form produced by MarshalCanonical.
func UnmarshalCanonical(data []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrValidation.Wrap(err)
	}
	m.Normalize()
	return &m, m.Validate()
}
