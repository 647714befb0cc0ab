package main

import (
	"os"

	"github.com/softglow/ambientd/cmd/ambientd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
