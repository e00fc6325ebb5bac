package main

import "github.com/RyanBlaney/sonido-ssvep/cmd"

func main() {
	cmd.Execute()
}
