package timeline

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Metadata carries the optional per-clip fields. A non-nil OriginalDuration
// marks the clip as trimmable.
type Metadata struct {
	TrimStart        float64  `json:"trimStart,omitempty"`
	OriginalDuration *float64 `json:"originalDuration,omitempty"`
	LogoOverlay      string   `json:"logoOverlay,omitempty"`
}

// MetadataFromMap converts a loosely typed key/value bag into Metadata.
// Numbers may arrive as strings or integers; unknown keys are ignored.
func MetadataFromMap(m map[string]any) (Metadata, error) {
	var md Metadata

	if v, ok := m["trimStart"]; ok && v != nil {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("trimStart: %w", err)
		}
		md.TrimStart = f
	}

	if v, ok := m["originalDuration"]; ok && v != nil {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("originalDuration: %w", err)
		}
		md.OriginalDuration = &f
	}

	if v, ok := m["logoOverlay"]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return Metadata{}, fmt.Errorf("logoOverlay: %w", err)
		}
		md.LogoOverlay = s
	}

	return md, nil
}

// Map returns the metadata as a plain bag, omitting unset fields.
func (m Metadata) Map() map[string]any {
	out := map[string]any{}
	if m.TrimStart != 0 {
		out["trimStart"] = m.TrimStart
	}
	if m.OriginalDuration != nil {
		out["originalDuration"] = *m.OriginalDuration
	}
	if m.LogoOverlay != "" {
		out["logoOverlay"] = m.LogoOverlay
	}
	return out
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metadata{}
		return nil
	}
	var bag map[string]any
	if err := json.Unmarshal(data, &bag); err != nil {
		return err
	}
	md, err := MetadataFromMap(bag)
	if err != nil {
		return err
	}
	*m = md
	return nil
}
