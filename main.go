package main

import "github.com/jalverson/ovation-cli/cmd"

func main() {
	cmd.Execute()
}
