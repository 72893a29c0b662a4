package main

import "github.com/jake-scott/actron-nimbus/cmd"

func main() {
	cmd.Execute()
}
