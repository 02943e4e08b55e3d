package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shoprec/shoprec/internal/app"
	"github.com/shoprec/shoprec/internal/catalog"
	"github.com/shoprec/shoprec/internal/config"
	"github.com/shoprec/shoprec/internal/logging"
	"github.com/shoprec/shoprec/internal/store"
)

// withApp loads configuration, wires the application and handles cleanup.
func withApp(fn func(*app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}

	a, err := app.New(cfg, cat)
	if err != nil {
		return fmt.Errorf("failed to open application: %w", err)
	}
	defer a.Close()

	return fn(a)
}

// loadCatalog reads a catalog snapshot (JSON array of products) into the
// in-memory gateway. A missing file yields an empty catalog, which is fine
// for tracking-only commands.
func loadCatalog(path string) (*catalog.Memory, error) {
	mem := catalog.NewMemory()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return mem, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	mem.Add(products...)
	return mem, nil
}

// flagActorResolver derives the visitor identity from the --user / --session
// flag pair. It stands in for the storefront session layer when commands run
// from a shell.
type flagActorResolver struct {
	userID    string
	sessionID string
}

func (r flagActorResolver) CurrentActor() store.Actor {
	return store.Actor{UserID: r.userID, SessionID: r.sessionID}
}

// parseActor resolves the actor for a command, requiring at least one of the
// two identity flags.
func parseActor(userID, sessionID string) (store.Actor, error) {
	var resolver app.ActorResolver = flagActorResolver{userID: userID, sessionID: sessionID}
	actor := resolver.CurrentActor()
	if actor.Empty() {
		return store.Actor{}, fmt.Errorf("either --user or --session is required")
	}
	return actor, nil
}
