package main

import "github.com/bz888/modeler/cmd"

func main() {
	cmd.Execute()
}
