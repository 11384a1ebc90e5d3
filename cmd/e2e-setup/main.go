// File: cmd/e2e-setup/main.go
package main

import (
	"context"
	"flag"
	"log"

	"render-studio/internal/config"
	"render-studio/internal/domain/model"
	"render-studio/internal/infra/db/postgres"
	"render-studio/internal/infra/redis"

	"github.com/joho/godotenv"
)

// This script resets storage to a clean, predictable state for manual
// end-to-end testing.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	seed := flag.Bool("seed", true, "seed a few renders after wiping")
	flag.Parse()

	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Wiping Redis...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	log.Println("[2/3] Wiping render rows...")
	if _, err := pool.Exec(ctx, `TRUNCATE renders RESTART IDENTITY CASCADE;`); err != nil {
		log.Fatalf("failed to truncate renders: %v", err)
	}

	if !*seed {
		log.Println("[3/3] Seeding skipped")
		log.Println("--- E2E Environment Ready ---")
		return
	}

	log.Println("[3/3] Seeding renders...")
	repo := postgres.NewRenderRepo(pool)
	url := "https://cdn.example.com/seed-output.png"
	seeds := []struct {
		prediction string
		prompt     string
		status     model.RenderStatus
		imageURL   *string
		errorText  string
	}{
		{"seed-active", "a harbor at dawn", model.RenderStatusProcessing, nil, ""},
		{"seed-done", "a mountain cabin in winter", model.RenderStatusSucceeded, &url, ""},
		{"seed-failed", "something the provider rejected", model.RenderStatusFailed, nil, "NSFW content detected"},
	}
	for _, s := range seeds {
		r, err := model.NewRender("e2e-user", s.prediction, "generate", s.prompt, "https://images.example.com/seed-source.jpg", s.status)
		if err != nil {
			log.Fatalf("seed render: %v", err)
		}
		r.ImageURL = s.imageURL
		r.ErrorText = s.errorText
		if err := repo.Upsert(ctx, nil, r); err != nil {
			log.Fatalf("seed upsert: %v", err)
		}
		log.Printf("  seeded %s (%s)", s.prediction, s.status)
	}

	log.Println("--- E2E Environment Ready ---")
}
