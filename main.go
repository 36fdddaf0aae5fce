package main

import "github.com/andresmejia3/spritesheet/cmd"

func main() {
	cmd.Execute()
}
