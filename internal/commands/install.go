package commands

import (
	"context"
	"fmt"
	"strings"

	celldockerrors "celldock/internal/errors"
)

const installCommandName = "install"

// installers maps each supported package manager to the instruction that
// installs a space-separated package list. Index update, install and cache
// cleanup share one instruction so the cache never lands in a layer.
var installers = map[string]func(packages string) string{
	"apt-get": func(packages string) string {
		return "RUN apt-get update && apt-get install -y " + packages + " && rm -rf /var/lib/apt/lists/*"
	},
}

// supportedManagers lists installers in display order
var supportedManagers = []string{"apt-get"}

// InstallCommand installs packages into the image with a supported package
// manager.
type InstallCommand struct{}

// NewInstallCommand creates the install command
func NewInstallCommand() *InstallCommand {
	return &InstallCommand{}
}

func (c *InstallCommand) Name() string { return installCommandName }

func (c *InstallCommand) Description() string {
	return "Install additional packages into the image"
}

func (c *InstallCommand) Contract() Contract {
	return Contract{
		Args:    []string{"package-manager", "package"},
		MinArgs: 2,
	}
}

func (c *InstallCommand) Execute(_ context.Context, inv Invocation, _ Env) (Result, error) {
	manager := strings.ToLower(inv.Args[0])
	render, ok := installers[manager]
	if !ok {
		return Result{}, celldockerrors.New(celldockerrors.ErrorCodeUnsupportedOption,
			fmt.Sprintf("Package manager not available (currently available: %s)",
				strings.Join(supportedManagers, ", ")))
	}

	instruction := render(strings.Join(inv.Args[1:], " "))
	return Result{
		Instructions: []string{instruction},
		NextInput:    instruction,
	}, nil
}
