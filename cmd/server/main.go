package main

import (
	"github.com/chirality-ai/valley/internal/server"
	"github.com/chirality-ai/valley/internal/util"
	"github.com/chirality-ai/valley/pkg/logger"
	"github.com/chirality-ai/valley/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Format: util.GetEnv("LOG_FORMAT"),
	})
	logger.Init(consoleLogger)

	server.Init()
}
