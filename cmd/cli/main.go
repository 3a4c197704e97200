package main

import "dockhub/cmd/cli/command"

func main() {
	command.Execute()
}
