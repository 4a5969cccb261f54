package commands

// legacyAliases are package-manager names accepted directly as commands.
// They are shorthand for the install command and share its contract.
var legacyAliases = map[string]string{
	"apt":     "apt-get",
	"apt-get": "apt-get",
	"pip":     "pip",
	"pip3":    "pip3",
	"conda":   "conda",
	"npm":     "npm",
}

// rewriteLegacyAlias turns `apt curl` into `install apt-get curl`.
//
// Deprecated shim: prefer the install command.
func rewriteLegacyAlias(inv Invocation) Invocation {
	manager, ok := legacyAliases[inv.Name]
	if !ok {
		return inv
	}
	inv.Args = append([]string{manager}, inv.Args...)
	inv.Name = installCommandName
	return inv
}
