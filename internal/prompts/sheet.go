package prompts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KnownSheet is the structured character sheet format accepted on file
// upload. Every field is optional.
type KnownSheet struct {
	Name       string                 `json:"name"`
	Race       string                 `json:"race"`
	Class      string                 `json:"class"`
	Level      int                    `json:"level"`
	Stats      map[string]interface{} `json:"stats"`
	Skills     []string               `json:"skills"`
	Equipment  []string               `json:"equipment"`
	Background string                 `json:"background"`
}

// Sheet is the result of parsing an uploaded character file: either the
// known schema or the raw text fallback. Exactly one variant is set.
type Sheet struct {
	Known *KnownSheet
	Raw   string
}

// ParseSheet interprets an uploaded character file. JSON objects parse
// into the known schema; anything else is carried verbatim as raw text.
func ParseSheet(data []byte) Sheet {
	var known KnownSheet
	if err := json.Unmarshal(data, &known); err == nil {
		return Sheet{Known: &known}
	}
	return Sheet{Raw: string(data)}
}

// Name returns the character's name, however the sheet spells it.
func (s Sheet) Name() string {
	if s.Known != nil && s.Known.Name != "" {
		return s.Known.Name
	}
	if s.Known == nil {
		return ExtractName(s.Raw)
	}
	return "Unnamed"
}

// Describe renders the sheet as readable text for the model. Total over
// both variants: a raw sheet passes through unchanged.
func (s Sheet) Describe() string {
	if s.Known == nil {
		return s.Raw
	}

	k := s.Known
	var b strings.Builder
	b.WriteString("=== CHARACTER ===\n")

	if k.Name != "" {
		fmt.Fprintf(&b, "Name: %s\n", k.Name)
	}
	if k.Race != "" {
		fmt.Fprintf(&b, "Race: %s\n", k.Race)
	}
	if k.Class != "" {
		fmt.Fprintf(&b, "Class: %s\n", k.Class)
	}
	if k.Level != 0 {
		fmt.Fprintf(&b, "Level: %d\n", k.Level)
	}

	if len(k.Stats) > 0 {
		b.WriteString("\nStats:\n")
		stats := make([]string, 0, len(k.Stats))
		for stat := range k.Stats {
			stats = append(stats, stat)
		}
		sort.Strings(stats)
		for _, stat := range stats {
			fmt.Fprintf(&b, "- %s: %v\n", stat, k.Stats[stat])
		}
	}

	if len(k.Skills) > 0 {
		b.WriteString("\nSkills:\n")
		for _, skill := range k.Skills {
			fmt.Fprintf(&b, "- %s\n", skill)
		}
	}

	if len(k.Equipment) > 0 {
		b.WriteString("\nEquipment:\n")
		for _, item := range k.Equipment {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}

	if k.Background != "" {
		fmt.Fprintf(&b, "\nBackground: %s\n", k.Background)
	}

	return b.String()
}
