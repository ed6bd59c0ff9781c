package main

import "roomlink/cmd/peer/cmd"

func main() {
	cmd.Execute()
}
