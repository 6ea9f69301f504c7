package main

import (
	"os"

	"github.com/STTM-NSU/paper-trader/cmd/ledgerctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
