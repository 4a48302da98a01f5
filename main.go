package main

import (
	"context"
	"os"

	"github.com/BDNK1/wizflow/cli/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
