package main

import "github.com/adamwoolhether/httpengine/cmd/httpengine/cmd"

func main() {
	cmd.Execute()
}
