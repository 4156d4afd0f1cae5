package main

import "github.com/Togather-Foundation/eventproxy/cmd/server/cmd"

func main() {
	cmd.Execute()
}
