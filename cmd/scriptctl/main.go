package main

import (
	"os"

	"github.com/t77yq/nitrite-automation/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
