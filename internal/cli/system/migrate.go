package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/fieldcall/internal/cli"
)

type migrator interface {
	Migrate(ctx context.Context) (int, error)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		ctx.Println("Storage backend has no schema. Nothing to migrate.")
		return nil
	}

	count, err := m.Migrate(ctx.Context())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("Successfully applied %d migration(s).\n", count)
	}
	return nil
}
