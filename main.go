package main

import "github.com/kozaktomas/pawtrail/cmd"

func main() {
	cmd.Execute()
}
