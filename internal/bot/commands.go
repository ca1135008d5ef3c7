// Package bot holds the conversation state machine: it routes inbound chat
// messages by command first and dialogue state second, runs the handler,
// commits the next state and sends the reply.
package bot

import (
	"strings"
)

// Command is one of the bot's slash commands.
type Command int

const (
	CommandHelp Command = iota + 1
	CommandUpdateRecipes
	CommandUpdateIngredients
	CommandMakeSuggestion
	CommandSaveSelectedRecipes
)

type commandInfo struct {
	name        string
	description string
}

var commandTable = map[Command]commandInfo{
	CommandHelp:                {name: "help", description: "Show help message"},
	CommandUpdateRecipes:       {name: "update-recipes", description: "Update recipes"},
	CommandUpdateIngredients:   {name: "update-ingredients", description: "Update ingredients"},
	CommandMakeSuggestion:      {name: "make-suggestion", description: "Make ration suggestion"},
	CommandSaveSelectedRecipes: {name: "save-selected-recipes", description: "Save selected recipes"},
}

// aliases maps extra normalized names onto commands.
var aliases = map[string]Command{
	"start":                CommandHelp,
	"makerationsuggestion": CommandMakeSuggestion,
}

// Commands returns every command in menu order.
func Commands() []Command {
	return []Command{
		CommandHelp,
		CommandUpdateRecipes,
		CommandUpdateIngredients,
		CommandMakeSuggestion,
		CommandSaveSelectedRecipes,
	}
}

// Name is the canonical hyphenated name, e.g. "update-recipes".
func (c Command) Name() string {
	return commandTable[c].name
}

// TelegramName is the name registered with Telegram, which only allows
// lowercase letters, digits and underscores.
func (c Command) TelegramName() string {
	return strings.ReplaceAll(c.Name(), "-", "_")
}

func (c Command) Description() string {
	return commandTable[c].description
}

func (c Command) String() string {
	if n := c.Name(); n != "" {
		return n
	}
	return "unknown"
}

// ParseCommand matches a bare command name case-insensitively, ignoring
// '-' and '_'. A leading '/' and a trailing "@botname" are stripped.
func ParseCommand(raw string) (Command, bool) {
	key := normalizeCommand(raw)
	if key == "" {
		return 0, false
	}
	for _, c := range Commands() {
		if normalizeCommand(c.Name()) == key {
			return c, true
		}
	}
	if c, ok := aliases[key]; ok {
		return c, true
	}
	return 0, false
}

func normalizeCommand(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "/")
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	s = strings.ToLower(s)
	return strings.NewReplacer("-", "", "_", "").Replace(s)
}

// HelpText lists the commands with their descriptions.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Available commands\n\n")
	for _, c := range Commands() {
		b.WriteString("/")
		b.WriteString(c.TelegramName())
		b.WriteString(" - ")
		b.WriteString(c.Description())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
