// counterctl -- CLI client for the counterd daemon.
package main

import "github.com/dantte-lp/counterd/cmd/counterctl/commands"

func main() {
	commands.Execute()
}
