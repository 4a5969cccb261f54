package commands

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps lower-cased command names to commands. It is filled once at
// startup and only read afterwards.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// NewDefaultRegistry creates a registry holding the built-in commands
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, cmd := range []Command{
		NewInstallCommand(),
		NewListCommand(),
		NewImageCommand(),
		NewHistoryCommand(),
		NewTagCommand(),
	} {
		// Built-in names are distinct.
		_ = r.Register(cmd)
	}
	return r
}

// Register adds a command. Names are case-insensitive and must be unique.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(cmd.Name())
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("invalid command name %q", cmd.Name())
	}
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command %q already registered", name)
	}
	r.commands[name] = cmd
	return nil
}

// Lookup finds a command by case-insensitive name
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Names returns all registered names in alphabetical order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
