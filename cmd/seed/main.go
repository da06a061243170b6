// Command seed fills the signup queue and the apple catalog with demo data.
package main

import (
	"context"
	"flag"
	"log"

	"appleverse/internal/bootstrap"
	"appleverse/internal/config"
	"appleverse/internal/security"
	"appleverse/internal/seed"
)

func main() {
	numPending := flag.Int("pending", 10, "Number of pending signup requests to create")
	numApples := flag.Int("apples", 25, "Number of apples to create")
	password := flag.String("password", "appleverse-demo", "Password for seeded signup requests")
	fakerSeed := flag.Int64("seed", 0, "Faker seed for reproducible data (0 = random)")
	dryRun := flag.Bool("dry-run", false, "Build records without writing them")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	res, err := seed.Seed(ctx, rt.Store, rt.Apples, security.NewBcryptHasher(cfg.BcryptCost), seed.Options{
		NumPending: *numPending,
		NumApples:  *numApples,
		Password:   *password,
		Seed:       *fakerSeed,
		DryRun:     *dryRun,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Printf("Seeded %d pending requests and %d apples", len(res.PendingIDs), len(res.AppleIDs))
	if *numPending > 0 && !*dryRun {
		log.Printf("Seeded requests share the password: %s", *password)
	}
}
