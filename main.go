package main

import "github.com/LegacyCodeHQ/sequencer/cmd"

func main() {
	cmd.Execute()
}
