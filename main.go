package main

import "github.com/markany/safepc-ueba/cmd"

func main() {
	cmd.Execute()
}
