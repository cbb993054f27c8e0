package main

import "github.com/lusia-studio/cli/cmd"

func main() {
	cmd.Execute()
}
