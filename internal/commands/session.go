package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/distribution/reference"

	celldockerrors "celldock/internal/errors"
)

// shortIDLength matches the truncated image IDs docker prints
const shortIDLength = 12

// ListCommand lists every registered command.
type ListCommand struct{}

func NewListCommand() *ListCommand { return &ListCommand{} }

func (c *ListCommand) Name() string        { return "commands" }
func (c *ListCommand) Description() string { return "List all available commands" }
func (c *ListCommand) Contract() Contract  { return Contract{} }

func (c *ListCommand) Execute(_ context.Context, _ Invocation, env Env) (Result, error) {
	return Result{Display: strings.Join(env.CommandNames(), "\n")}, nil
}

// ImageCommand shows the current checkpoint.
type ImageCommand struct{}

func NewImageCommand() *ImageCommand { return &ImageCommand{} }

func (c *ImageCommand) Name() string        { return "image" }
func (c *ImageCommand) Description() string { return "Show the image the next cell builds on" }

func (c *ImageCommand) Contract() Contract {
	return Contract{
		Flags:  []string{"short"},
		Shorts: []string{"s"},
	}
}

func (c *ImageCommand) Execute(_ context.Context, inv Invocation, env Env) (Result, error) {
	id, ok := env.Checkpoint()
	if !ok {
		return Result{Display: "no image built yet"}, nil
	}
	if inv.HasFlag("short", "s") {
		id = ShortID(id)
	}
	return Result{Display: id}, nil
}

// HistoryCommand prints every committed stage.
type HistoryCommand struct{}

func NewHistoryCommand() *HistoryCommand { return &HistoryCommand{} }

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Description() string { return "Show the committed build stages" }
func (c *HistoryCommand) Contract() Contract  { return Contract{} }

func (c *HistoryCommand) Execute(_ context.Context, _ Invocation, env Env) (Result, error) {
	stages := env.History()
	if len(stages) == 0 {
		return Result{Display: "no stages committed"}, nil
	}

	var b strings.Builder
	for i, stage := range stages {
		if i > 0 {
			b.WriteString("\n")
		}
		base := "-"
		if stage.BaseImageID != "" {
			base = ShortID(stage.BaseImageID)
		}
		fmt.Fprintf(&b, "#%d %s <- %s", stage.Position, ShortID(stage.ImageID), base)
		for _, line := range stage.Instructions {
			fmt.Fprintf(&b, "\n    %s", line)
		}
	}
	return Result{Display: b.String()}, nil
}

// TagCommand names the current checkpoint. The chain is not touched.
type TagCommand struct{}

func NewTagCommand() *TagCommand { return &TagCommand{} }

func (c *TagCommand) Name() string        { return "tag" }
func (c *TagCommand) Description() string { return "Tag the current image" }

func (c *TagCommand) Contract() Contract {
	return Contract{
		Args:    []string{"reference"},
		MinArgs: 1,
		Validators: map[int]Validator{
			0: {
				Check: func(arg string) bool {
					_, err := reference.ParseNormalizedNamed(arg)
					return err == nil
				},
				Expect: "an image reference such as name:tag",
			},
		},
	}
}

func (c *TagCommand) Execute(ctx context.Context, inv Invocation, env Env) (Result, error) {
	id, ok := env.Checkpoint()
	if !ok {
		return Result{}, celldockerrors.New(celldockerrors.ErrorCodeNoCheckpoint, "nothing to tag: no image built yet")
	}

	named, err := reference.ParseNormalizedNamed(inv.Args[0])
	if err != nil {
		return Result{}, celldockerrors.Wrap(celldockerrors.ErrorCodeArgumentValidation, err)
	}
	ref := reference.FamiliarString(reference.TagNameOnly(named))

	if err := env.TagImage(ctx, id, ref); err != nil {
		return Result{}, celldockerrors.Wrap(celldockerrors.ErrorCodeBuildEngineFailure, err, "tag "+ref)
	}
	return Result{Display: fmt.Sprintf("Tagged %s as %s", ShortID(id), ref)}, nil
}

// ShortID trims an image ID to the form docker prints
func ShortID(id string) string {
	_, hex, found := strings.Cut(id, ":")
	if !found {
		hex = id
	}
	if len(hex) > shortIDLength {
		return hex[:shortIDLength]
	}
	return hex
}
