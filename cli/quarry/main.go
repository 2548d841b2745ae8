package main

import (
	"os"

	quarrycmder "github.com/quarryhq/quarry/cmd/quarry"
)

func main() {
	cmd := quarrycmder.NewQuarryCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
