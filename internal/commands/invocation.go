package commands

import (
	"strings"
)

// Invocation is one parsed command line.
type Invocation struct {
	Name   string
	Args   []string
	Flags  map[string]string // long flags; a bare --name maps to ""
	Longs  []string          // long flag names in the order first given
	Shorts []string          // short flags in the order they were given
}

// HasFlag reports whether the long flag or its short form was supplied.
func (inv Invocation) HasFlag(long, short string) bool {
	if _, ok := inv.Flags[long]; ok {
		return true
	}
	for _, s := range inv.Shorts {
		if s == short {
			return true
		}
	}
	return false
}

// Parse tokenizes a command line with the trigger marker already removed.
// The first token, lower-cased, is the command name. Tokens of the form
// --name, --name=value and -abc are flags; a bare "--" ends flag parsing.
func Parse(text string) Invocation {
	inv := Invocation{Flags: make(map[string]string)}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return inv
	}
	inv.Name = strings.ToLower(tokens[0])

	flagsDone := false
	for _, tok := range tokens[1:] {
		switch {
		case flagsDone || tok == "-" || !strings.HasPrefix(tok, "-"):
			inv.Args = append(inv.Args, tok)
		case tok == "--":
			flagsDone = true
		case strings.HasPrefix(tok, "--"):
			name, value, _ := strings.Cut(tok[2:], "=")
			if _, seen := inv.Flags[name]; !seen {
				inv.Longs = append(inv.Longs, name)
			}
			inv.Flags[name] = value
		default:
			for _, r := range tok[1:] {
				inv.Shorts = append(inv.Shorts, string(r))
			}
		}
	}

	return inv
}
