package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	content := `{"rules": {"narration_style": {"perspective": "second person"}, "dice": "narrative"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Len(t, rules.Rules, 2)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestSystemPromptNilRules(t *testing.T) {
	assert.Empty(t, SystemPrompt(nil))
	assert.Empty(t, SystemPrompt(&Rules{}))
}

func TestSystemPromptRendersCategories(t *testing.T) {
	rules := &Rules{Rules: map[string]interface{}{
		"world_rules": map[string]interface{}{
			"consistency": "facts never change",
			"setting":     "adaptive",
		},
		"narration_style": map[string]interface{}{
			"senses": []interface{}{"sight", "sound", "smell"},
		},
		"dice_and_checks": "resolve narratively",
	}}

	prompt := SystemPrompt(rules)
	assert.Contains(t, prompt, "You are the Game Master")
	assert.Contains(t, prompt, "WORLD RULES:")
	assert.Contains(t, prompt, "- consistency: facts never change")
	assert.Contains(t, prompt, "NARRATION STYLE:")
	assert.Contains(t, prompt, "- senses: sight, sound, smell")
	assert.Contains(t, prompt, "DICE AND CHECKS:")
	assert.Contains(t, prompt, "- resolve narratively")
	assert.Contains(t, prompt, "IMPORTANT:")

	// Categories render in a stable order.
	assert.Equal(t, prompt, SystemPrompt(rules))
}

func TestCreationPromptCarriesMarkers(t *testing.T) {
	prompt := CreationPrompt("BASE PROMPT")
	assert.Contains(t, prompt, "BASE PROMPT")
	assert.Contains(t, prompt, BeginCharacterMarker)
	assert.Contains(t, prompt, EndCharacterMarker)
}

func TestExtractName(t *testing.T) {
	assert.Equal(t, "Aria", ExtractName("Name: Aria\nAn elven ranger."))
	assert.Equal(t, "Aria", ExtractName("Some intro\n  Name: Aria  \nmore text"))
	assert.Equal(t, "Unnamed", ExtractName("no name line here"))
	assert.Equal(t, "Unnamed", ExtractName("Name:   \nblank name"))
	assert.Equal(t, "Unnamed", ExtractName(""))
}
