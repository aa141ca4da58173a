package main

import "github.com/notargets/gopwld/cmd"

func main() {
	cmd.Execute()
}
