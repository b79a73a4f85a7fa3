package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"macro-trader/internal/cli"
)

func main() {
	root := cli.NewRootCmd(nil, zerolog.Nop())
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
