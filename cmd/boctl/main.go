package main

import "github.com/quietgrove/backoffice/cmd/boctl/cmd"

func main() {
	cmd.Execute()
}
