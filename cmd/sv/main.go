package main

import (
	"log"

	"snapvault/cmd/sv/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
