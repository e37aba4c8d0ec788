package main

import "github.com/pribylovaa/go-taskboard/cmd/taskctl/cmd"

func main() {
	cmd.Execute()
}
