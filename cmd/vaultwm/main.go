package main

import "github.com/vaultos/vaultwm/cmd/vaultwm/commands"

func main() {
	commands.Execute()
}
