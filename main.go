package main

import "github.com/notargets/gocavity/cmd"

func main() {
	cmd.Execute()
}
