package commands

import (
	"context"
	"slices"
)

// Validator checks one positional argument. Expect describes the accepted
// form and is shown to the user when Check fails.
type Validator struct {
	Check  func(arg string) bool
	Expect string
}

// Contract is what a command declares about its arguments and flags.
type Contract struct {
	Args       []string          // names of the required arguments, in order
	MinArgs    int               // minimum number of positional arguments
	Validators map[int]Validator // keyed by zero-based position
	Flags      []string          // accepted long flags, without leading dashes
	Shorts     []string          // accepted short flags, single letters
}

func (c Contract) acceptsFlag(name string) bool {
	return slices.Contains(c.Flags, name)
}

func (c Contract) acceptsShort(name string) bool {
	return slices.Contains(c.Shorts, name)
}

// Result is what a command produces. A result with instructions feeds a
// build; a result without them is display-only and leaves the image chain
// alone.
type Result struct {
	Instructions []string
	Display      string
	NextInput    string // proposed replacement for the cell, shown to the user for editing
}

// DisplayOnly reports whether the result has no build effect.
func (r Result) DisplayOnly() bool {
	return len(r.Instructions) == 0
}

// Command is a shorthand handler registered under a name.
type Command interface {
	Name() string
	Description() string
	Contract() Contract
	Execute(ctx context.Context, inv Invocation, env Env) (Result, error)
}

// StageSummary is the read-only view of a committed build stage that
// commands are allowed to see.
type StageSummary struct {
	Position     int
	BaseImageID  string
	ImageID      string
	Instructions []string
}

// Env is the session state a command may consult while it executes. It
// never lets a command mutate the image chain.
type Env interface {
	Checkpoint() (string, bool)
	History() []StageSummary
	CommandNames() []string
	TagImage(ctx context.Context, imageID, ref string) error
}
