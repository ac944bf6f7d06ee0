package main

import "github.com/roomtalk/roomtalk/cmd/roomtalk-cli/cmd"

func main() {
	cmd.Execute()
}
