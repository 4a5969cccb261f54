package commands

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	celldockerrors "celldock/internal/errors"
)

// DefaultMarker is the leading character that turns a cell into a command.
const DefaultMarker = "%"

// Dispatcher resolves command lines against a registry and runs them once
// their contract is satisfied.
type Dispatcher struct {
	registry *Registry
	marker   string
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. An empty marker selects DefaultMarker.
func NewDispatcher(registry *Registry, marker string, logger *zap.Logger) *Dispatcher {
	if marker == "" {
		marker = DefaultMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		marker:   marker,
		logger:   logger,
	}
}

// Registry returns the registry the dispatcher resolves against
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// IsCommand reports whether a cell starts with the trigger marker
func (d *Dispatcher) IsCommand(cell string) bool {
	return strings.HasPrefix(cell, d.marker)
}

// Dispatch parses a command cell, validates it against the resolved
// command's contract and executes it. A command is a single line; any
// further non-blank line is rejected. Every error returned is a
// *celldockerrors.CelldockError from the dispatch family.
func (d *Dispatcher) Dispatch(ctx context.Context, cell string, env Env) (Result, error) {
	line, rest, _ := strings.Cut(strings.TrimPrefix(cell, d.marker), "\n")
	inv := Parse(line)
	if inv.Name == "" {
		return Result{}, celldockerrors.New(celldockerrors.ErrorCodeUnknownCommand,
			fmt.Sprintf("expected a command name after %q", d.marker))
	}

	inv = rewriteLegacyAlias(inv)

	cmd, ok := d.registry.Lookup(inv.Name)
	if !ok {
		return Result{}, celldockerrors.Newf(celldockerrors.ErrorCodeUnknownCommand,
			"unknown command %s%s (run %scommands to list them)", d.marker, inv.Name, d.marker)
	}

	if extra := firstNonBlankLine(rest); extra != "" {
		return Result{}, celldockerrors.Newf(celldockerrors.ErrorCodeArgumentValidation,
			"%s takes a single line, found %q after it", inv.Name, extra)
	}

	if err := validate(cmd, inv); err != nil {
		d.logger.Debug("Command rejected",
			zap.String("command", inv.Name),
			zap.Error(err),
		)
		return Result{}, err
	}

	d.logger.Debug("Executing command",
		zap.String("command", inv.Name),
		zap.Strings("args", inv.Args),
	)
	return cmd.Execute(ctx, inv, env)
}

func firstNonBlankLine(text string) string {
	for line := range strings.Lines(text) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func validate(cmd Command, inv Invocation) error {
	contract := cmd.Contract()

	if len(inv.Args) < contract.MinArgs {
		missing := ""
		if len(inv.Args) < len(contract.Args) {
			missing = ": missing " + strings.Join(contract.Args[len(inv.Args):], ", ")
		}
		return celldockerrors.Newf(celldockerrors.ErrorCodeArgumentCount,
			"%s requires at least %d argument(s), got %d%s",
			inv.Name, contract.MinArgs, len(inv.Args), missing)
	}

	for pos, arg := range inv.Args {
		v, ok := contract.Validators[pos]
		if !ok || v.Check(arg) {
			continue
		}
		return celldockerrors.Newf(celldockerrors.ErrorCodeArgumentValidation,
			"%s: argument %d (%q) is invalid, expected %s",
			inv.Name, pos+1, arg, v.Expect)
	}

	for _, name := range inv.Longs {
		if !contract.acceptsFlag(name) {
			return celldockerrors.Newf(celldockerrors.ErrorCodeUnknownFlag,
				"%s does not accept flag --%s", inv.Name, name)
		}
	}
	for _, short := range inv.Shorts {
		if !contract.acceptsShort(short) {
			return celldockerrors.Newf(celldockerrors.ErrorCodeUnknownFlag,
				"%s does not accept flag -%s", inv.Name, short)
		}
	}

	return nil
}
