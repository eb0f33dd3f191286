package main

import "github.com/keytape/keytape/cmd"

func main() {
	cmd.Execute()
}
