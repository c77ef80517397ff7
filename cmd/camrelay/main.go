package main

import (
	"github.com/BioHazard786/camrelay/internal/cli"
	"github.com/BioHazard786/camrelay/internal/logging"
)

func main() {
	// Initialize logging
	logging.InitFromEnv()
	cli.Execute()
}
