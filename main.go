package main

import (
	"os"

	"github.com/wave745/goontest-sub001/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
