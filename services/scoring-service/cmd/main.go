package main

import (
	"context"
	"flag"
	"log"

	"github.com/tilerush/scoreboard/common/config"
	"github.com/tilerush/scoreboard/common/utils"
	"github.com/tilerush/scoreboard/services/scoring-service/app"
)

func main() {
	configPath := flag.String("config", "../config", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	runErr := application.Run(ctx)
	if err := application.Close(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Application stopped with error: %v", runErr)
	}
	log.Println("Shutdown complete")
}
