package main

import (
	"os"

	"github.com/outpost-labs/bootplane/pkg/bootplane"
)

func main() {
	if err := bootplane.BuildRootCmd().Execute(); err != nil {
		os.Exit(bootplane.ExitCode(err))
	}
}
