// rndc is the command-line client for BIND's Remote Name Daemon Control protocol.
package main

import "github.com/isccctl/gornd/cmd/rndc/commands"

func main() {
	commands.Execute()
}
