// Command tektonctl registers, unregisters, and inspects components on a
// running tekton fabric over its bus-based registration protocol.
package main

import "github.com/tekton-fabric/core/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
