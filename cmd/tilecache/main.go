package main

import (
	"os"

	"github.com/unkn0wn-root/tilecache/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
