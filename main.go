package main

import (
	"github.com/sidkik/drivesync/cmd"
	"github.com/sidkik/drivesync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
