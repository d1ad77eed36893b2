package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/example/rosterd/internal/api"
	"github.com/example/rosterd/internal/bootstrap"
	"github.com/example/rosterd/internal/observability"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("ROSTERD_PORT")
	if port == "" {
		port = "8080"
	}

	shutdownTrace, err := observability.InitTracingFromEnv("rosterd")
	if err != nil {
		log.Fatalf("init tracing: %v", err)
	}
	defer func() { _ = shutdownTrace(context.Background()) }()

	engine, err := bootstrap.NewEngineFromEnv(context.Background())
	if err != nil {
		log.Fatalf("bootstrap engine: %v", err)
	}
	server := api.NewServer(engine.Manager, engine.Machine, engine.Store, engine.Feed)

	log.Printf("rosterd listening on :%s", port)
	if err := http.ListenAndServe(":"+port, server.Handler()); err != nil {
		log.Fatalf("rosterd failed: %v", err)
	}
}
