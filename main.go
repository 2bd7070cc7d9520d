package main

import "github.com/samsaffron/pulse/cmd"

func main() {
	cmd.Execute()
}
