package main

import "github.com/evcare/portal-gate/cmd/portal-gate/cmd"

func main() {
	cmd.Execute()
}
