// seed-rules inserts the built-in HGB plausibility rule catalog.
// Existing rules (matched by code) are never overwritten, so local edits
// survive reseeding.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-rules
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Attendry/Konzern-sub004/config"
	"github.com/Attendry/Konzern-sub004/models"
	"github.com/Attendry/Konzern-sub004/utils"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, "seed")
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	created, err := models.SeedDefaultRules(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed rules: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %d rule(s), %d already present\n", created, len(models.DefaultRuleCatalog())-created)
}
