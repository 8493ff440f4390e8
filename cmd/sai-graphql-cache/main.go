package main

import (
	"context"
	"flag"
	"log"

	"github.com/saiset-co/sai-graphql-cache/service"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the service configuration file")
	flag.Parse()

	svc, err := service.NewService(context.Background(), *configPath)
	if err != nil {
		log.Fatalf("failed to initialize service: %v", err)
	}

	if err := svc.Start(); err != nil {
		log.Fatalf("service exited with error: %v", err)
	}
}
