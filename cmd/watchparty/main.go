package main

import (
	"github.com/joho/godotenv"

	"github.com/BioHazard786/watchparty/internal/cli"
	"github.com/BioHazard786/watchparty/internal/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Init()
	cli.Execute()
}
