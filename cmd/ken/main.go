package main

import (
	"os"

	"github.com/ken-run/ken/internal/command"
)

func main() {
	err := command.Execute()
	os.Exit(command.ExitCode(err))
}
