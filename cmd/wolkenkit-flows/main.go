// Command wolkenkit-flows runs the flows of the planning demo application.
package main

import (
	"fmt"
	"os"

	"github.com/thenativeweb/wolkenkit-flows/internal/cli"
	"github.com/thenativeweb/wolkenkit-flows/internal/demo"
)

func main() {
	wm, err := demo.WriteModel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load write model: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}

	app := cli.App{
		Name:       demo.Application,
		Flows:      demo.Flows(),
		WriteModel: wm,
	}

	if err := cli.NewRootCommand(app).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
