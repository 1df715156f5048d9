package main

import "poker-hand-editor/cmd"

func main() {
	cmd.Execute()
}
