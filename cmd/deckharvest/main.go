package main

import (
	"os"

	"github.com/JakeFAU/deck-harvester/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
