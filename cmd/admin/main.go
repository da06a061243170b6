// Command admin manages admin records from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"appleverse/internal/bootstrap"
	"appleverse/internal/config"
	"appleverse/internal/models"
	"appleverse/internal/repository"
	"appleverse/internal/security"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin create-main               - Create or approve the main admin from MAIN_ADMIN_* settings")
	fmt.Println("  go run ./cmd/admin list <pending|active|rejected>")
	fmt.Println("  go run ./cmd/admin approve <request_id>      - Move a pending request to active")
	fmt.Println("  go run ./cmd/admin revoke <admin_id>         - Move an active admin to rejected")
	fmt.Println("  go run ./cmd/admin reinstate <request_id>    - Move a rejected record back to active")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer func() { _ = rt.Close(ctx) }()

	if err := run(ctx, cfg, rt.Store, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, store repository.CredentialStore, args []string) error {
	switch args[0] {
	case "create-main":
		rec, err := bootstrap.EnsureMainAdmin(ctx, store, security.NewBcryptHasher(cfg.BcryptCost),
			cfg.MainAdminName, cfg.MainAdminEmail, cfg.MainAdminPassword)
		if err != nil {
			return fmt.Errorf("create main admin: %w", err)
		}
		fmt.Printf("Main admin %s is active (ID: %s)\n", rec.Email, rec.ID)

	case "list":
		if len(args) < 2 {
			return fmt.Errorf("usage: go run ./cmd/admin list <pending|active|rejected>")
		}
		state := models.LifecycleState(strings.ToLower(args[1]))
		if !state.Valid() {
			return fmt.Errorf("unknown state %q", args[1])
		}
		recs, err := store.ListAll(ctx, state)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Printf("No %s records\n", state)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tSINCE")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Email, r.Name, r.StateChangedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "approve":
		return move(ctx, store, args, []models.LifecycleState{models.StatePending}, models.StateActive)
	case "revoke":
		return move(ctx, store, args, []models.LifecycleState{models.StateActive}, models.StateRejected)
	case "reinstate":
		return move(ctx, store, args, []models.LifecycleState{models.StateRejected}, models.StateActive)

	default:
		usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return nil
}

func move(ctx context.Context, store repository.CredentialStore, args []string, from []models.LifecycleState, to models.LifecycleState) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: go run ./cmd/admin %s <id>", args[0])
	}
	rec, _, err := store.Move(ctx, strings.TrimSpace(args[1]), from, to)
	if err != nil {
		return fmt.Errorf("%s failed: %w", args[0], err)
	}
	fmt.Printf("%s (%s) is now %s\n", rec.Email, rec.ID, rec.State)
	return nil
}
