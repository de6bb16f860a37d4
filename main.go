package main

import (
	"github.com/hpcforge/sbatcher/commands"
	"github.com/hpcforge/sbatcher/log"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
	log.Debug("Exiting main...")
}
