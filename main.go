package main

import "simplebot/cmd"

func main() {
	cmd.Execute()
}
