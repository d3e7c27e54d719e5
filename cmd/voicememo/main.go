// Package main provides the voicememo server and maintenance CLI.
//
// Usage:
//
//	voicememo [flags] <command>
//
// Commands:
//
//	serve     - Run the HTTP API
//	migrate   - Create the voice table
//	reconcile - Compare stored records with archived audio
//	token     - Issue a client bearer token
//
// Configuration is read from the environment and optional .env files.
package main

import (
	"fmt"
	"os"

	"github.com/satriahrh/voicememo/cmd/voicememo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
