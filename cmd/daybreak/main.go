package main

import "github.com/marcus/daybreak/cmd/daybreak/commands"

func main() {
	commands.Execute()
}
