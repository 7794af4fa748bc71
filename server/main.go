package main

import "github.com/gregriff/vocall/server/cmd"

func main() {
	cmd.Execute()
}
