package system

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/config"
)

type InitCmd struct {
	Force bool `help:"Overwrite an existing config file."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if ctx.ConfigPath != "" {
		path, err := config.ExpandHome(ctx.ConfigPath)
		if err != nil {
			return err
		}
		_, statErr := os.Stat(path)
		switch {
		case errors.Is(statErr, os.ErrNotExist) || c.Force:
			if err := config.Write(path, ctx.Config); err != nil {
				return err
			}
			fmt.Printf("Wrote config: %s\n", path)
		case statErr != nil:
			return fmt.Errorf("failed to check config file: %w", statErr)
		default:
			fmt.Printf("Config already exists: %s (use --force to overwrite)\n", path)
		}
	}

	snap, err := ctx.Store.Load(context.Background())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	fmt.Printf("Initialized habitual storage at: %s\n", ctx.Store.Location())
	fmt.Printf("  %d habits, %d categories\n", len(snap.Habits), len(snap.Categories))
	return nil
}
