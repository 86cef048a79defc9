package main

import (
	"email-automation/cmd/cli/cmd"
)

func main() {
	cmd.Execute()
}
