// Acspmonctl is the operator CLI for the acspmon daemon.
package main

import "github.com/cachalot1984/acspmon/cmd/acspmonctl/commands"

func main() {
	commands.Execute()
}
