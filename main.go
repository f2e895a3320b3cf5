package main

import "github.com/tupyy/mdm-agent-ng/cmd"

func main() {
	cmd.Execute()
}
