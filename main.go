package main

import "github.com/rm-hull/hideaway/cmd"

func main() {
	cmd.Main()
}
