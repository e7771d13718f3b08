package main

import (
	"context"
	"flag"
	"log"
	"os"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/infra/db/postgres"
	"gpu-notebook-bridge/internal/infra/redis"
)

// This script prepares clean job history stores for manual end-to-end runs
// of a worker with redis and postgres configured.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "schema applied before truncating")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Clean the Redis cache: claims, snapshots and rate limit counters.
	if cfg.Redis.URL != "" {
		log.Println("[1/3] Wiping Redis database...")
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		if err := redisClient.FlushDB(ctx); err != nil {
			log.Fatalf("failed to flush redis: %v", err)
		}
	} else {
		log.Println("[1/3] redis.url not set, skipping")
	}

	if cfg.Database.URL == "" {
		log.Println("[2/3] database.url not set, skipping schema")
		log.Println("[3/3] database.url not set, skipping truncate")
		log.Println("--- E2E Environment Setup Complete ---")
		return
	}

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	// 2. Make sure the archive tables exist.
	log.Println("[2/3] Applying schema...")
	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema %s: %v", *schemaPath, err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	// 3. Clean the archive completely.
	log.Println("[3/3] Wiping archived jobs...")
	if _, err := pool.Exec(ctx, `TRUNCATE worker_jobs, worker_job_events RESTART IDENTITY CASCADE`); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}
