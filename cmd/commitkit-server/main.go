package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"commitkit/internal/config"
)

// Tagline is used in help text.
const Tagline = "Headless git commit panel served over WebSocket"

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("commitkit-server"),
		kong.Description(Tagline),
		kong.Vars{
			"version": fmt.Sprintf("%s %s", config.AppName, config.AppVersion),
		},
		kong.UsageOnError(),
		kong.Bind(&cli),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
