package main

import (
	"os"

	"cuadre/cmd/cuadre-admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
