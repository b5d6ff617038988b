package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
)

type ValidateCmd struct {
	Fix bool `help:"Remove orphaned, duplicate and undated entries."`
}

func (cmd *ValidateCmd) Run(ctx *cli.Context) error {
	fmt.Println("Validating habits and entries...")

	result, actions, err := ctx.Habits.Validate(context.Background(), cmd.Fix)
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}

	fmt.Println()
	fmt.Println(result.FormatReport())

	if len(actions) > 0 {
		fmt.Println("Fixes applied:")
		for _, a := range actions {
			fmt.Printf("- %s\n", a.Action)
		}
	} else if result.HasConflicts() && !cmd.Fix {
		fmt.Println("Run with --fix to remove entries that cannot be valid.")
	}

	// Conflicts are reported, not returned as an error
	return nil
}
