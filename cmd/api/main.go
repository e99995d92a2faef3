package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"moltworks/agent"
	"moltworks/auth"
	"moltworks/claim"
	"moltworks/config"
	"moltworks/db"
	"moltworks/job"
	"moltworks/submission"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jobRepo := job.NewRepository(pool)

	server := &Server{
		authService:       auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		jobService:        job.NewService(pool, jobRepo),
		jobInitializer:    job.NewInitializer(jobRepo),
		claimService:      claim.NewService(pool, nil),
		submissionService: submission.NewService(pool, nil),
		agentService:      agent.NewService(agent.NewRepository(pool)),
	}

	log.Printf("listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.routes()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
