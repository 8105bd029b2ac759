package main

import "github.com/PolloDK/FK01-Encuestas/cmd"

func main() {
	cmd.Execute()
}
