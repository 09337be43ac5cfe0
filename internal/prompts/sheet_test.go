package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSheetKnownSchema(t *testing.T) {
	data := []byte(`{
		"name": "Borin",
		"race": "Dwarf",
		"class": "Smith",
		"level": 3,
		"stats": {"strength": 16, "wisdom": 10},
		"skills": ["smithing", "appraisal"],
		"equipment": ["hammer", "leather apron"],
		"background": "Raised in the mountain halls."
	}`)

	sheet := ParseSheet(data)
	require.NotNil(t, sheet.Known)
	assert.Equal(t, "Borin", sheet.Name())

	desc := sheet.Describe()
	assert.Contains(t, desc, "=== CHARACTER ===")
	assert.Contains(t, desc, "Name: Borin")
	assert.Contains(t, desc, "Race: Dwarf")
	assert.Contains(t, desc, "Level: 3")
	assert.Contains(t, desc, "- strength: 16")
	assert.Contains(t, desc, "- smithing")
	assert.Contains(t, desc, "- hammer")
	assert.Contains(t, desc, "Background: Raised in the mountain halls.")
}

func TestParseSheetRawFallback(t *testing.T) {
	raw := "Name: Kael\nA wandering monk with no past."
	sheet := ParseSheet([]byte(raw))
	require.Nil(t, sheet.Known)
	assert.Equal(t, "Kael", sheet.Name())
	assert.Equal(t, raw, sheet.Describe())
}

func TestParseSheetAnonymous(t *testing.T) {
	sheet := ParseSheet([]byte(`{"race": "Elf"}`))
	assert.Equal(t, "Unnamed", sheet.Name())

	raw := ParseSheet([]byte("just some description"))
	assert.Equal(t, "Unnamed", raw.Name())
}

func TestDescribeSkipsEmptyFields(t *testing.T) {
	sheet := ParseSheet([]byte(`{"name": "Mira"}`))
	desc := sheet.Describe()
	assert.Contains(t, desc, "Name: Mira")
	assert.NotContains(t, desc, "Race:")
	assert.NotContains(t, desc, "Stats:")
	assert.NotContains(t, desc, "Level:")
}
