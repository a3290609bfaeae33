package main

import (
	cmd "github.com/rxevidence/rxevidence/cmd/rxevidence"
	"github.com/rxevidence/rxevidence/internal"
)

var log = internal.GetLogger()

func main() {
	log.Info("Starting rxevidence")
	cmd.Execute()
}
