package main

import (
	"os"

	"github.com/repomd/vaultproc/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	os.Exit(cli.Execute(version, buildTime))
}
