package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Rules is the game-master rulebook loaded from a JSON file. Categories
// map to either a nested key/value object, a list, or a plain string.
type Rules struct {
	Rules map[string]interface{} `json:"rules"`
}

// LoadRules reads the rulebook. A missing file is not an error for the
// caller to handle specially; the server falls back to the bare prompt.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return &rules, nil
}

const systemPromptHeader = `You are the Game Master (GM) of a narrative role-playing game. Run the game according to the following rules:

GAME RULES:
`

// FallbackPrompt is used when no rulebook is configured or the file
// fails to load.
const FallbackPrompt = `You are the Game Master (GM) of a narrative role-playing game. Lead an engaging story in the world the player's character belongs to. Describe the world, NPCs and consequences of the player's actions. Keep replies short and to the point for a web interface.`

const systemPromptFooter = `
IMPORTANT:
- If the player does NOT use the 'GM:' tag, you may only describe the world, NPCs and their actions
- Do NOT offer action options unless the player asks for them
- The world lives its own life independently of the player
- Keep replies short and to the point for a web interface.`

// SystemPrompt renders the rulebook into the GM system prompt. A nil
// rulebook yields an empty prompt, matching a server started without a
// rules file.
func SystemPrompt(rules *Rules) string {
	if rules == nil || len(rules.Rules) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(systemPromptHeader)

	categories := make([]string, 0, len(rules.Rules))
	for category := range rules.Rules {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		title := strings.ToUpper(strings.ReplaceAll(category, "_", " "))
		b.WriteString("\n" + title + ":\n")
		writeRuleContent(&b, rules.Rules[category])
	}

	b.WriteString(systemPromptFooter)
	return b.String()
}

func writeRuleContent(b *strings.Builder, content interface{}) {
	switch v := content.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(b, "- %s: %s\n", key, ruleValue(v[key]))
		}
	default:
		fmt.Fprintf(b, "- %s\n", ruleValue(v))
	}
}

func ruleValue(value interface{}) string {
	if items, ok := value.([]interface{}); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%v", value)
}

// Character creation markers the model is instructed to emit around the
// finished sheet.
const (
	BeginCharacterMarker = "BEGIN-CHARACTER"
	EndCharacterMarker   = "END-CHARACTER"
)

// CreationPrompt builds the system prompt for the character-creation
// sub-dialogue on top of the regular GM prompt.
func CreationPrompt(systemPrompt string) string {
	return systemPrompt + `

CHARACTER CREATION MODE:
You are helping the player create a character. Ask about:
- Name and appearance
- Backstory and personality
- Skills and abilities
- Equipment and quirks

When the character is ready (after 4-5 questions), finish with the
description in this exact format:
` + BeginCharacterMarker + `
Name: [name]
[Full character description]
` + EndCharacterMarker
}

// ExtractName pulls the character name out of a description, looking for
// a "Name:" line. Falls back to "Unnamed".
func ExtractName(description string) string {
	for _, line := range strings.Split(description, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Name:") {
			if name := strings.TrimSpace(strings.TrimPrefix(trimmed, "Name:")); name != "" {
				return name
			}
		}
	}
	return "Unnamed"
}
