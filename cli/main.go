package main

import "github.com/gregriff/vocall/cli/cmd"

func main() {
	cmd.Execute()
}
