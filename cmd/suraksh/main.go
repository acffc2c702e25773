package main

import "github.com/Ayush-3103-AI/Suraksh/cli/cmd"

func main() {
	cmd.Execute()
}
