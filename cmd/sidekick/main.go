package main

import "github.com/lunarhue/sidekick/cmd"

func main() {
	cmd.Execute()
}
