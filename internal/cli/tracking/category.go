package tracking

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitual/internal/cli"
	"github.com/julianstephens/habitual/internal/habits"
)

type CategoryCmd struct {
	Add    CategoryAddCmd    `cmd:"" help:"Add a category."`
	List   CategoryListCmd   `cmd:"" help:"List categories."`
	Edit   CategoryEditCmd   `cmd:"" help:"Rename or recolor a category."`
	Delete CategoryDeleteCmd `cmd:"" help:"Delete a category."`
}

type CategoryAddCmd struct {
	Name  string `arg:"" help:"Category name."`
	Color string `help:"Display color (hex)." default:"#6B7280"`
	Icon  string `help:"Icon name." default:"star"`
}

func (c *CategoryAddCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Habits.CreateCategory(context.Background(), habits.CategoryInput{Name: c.Name, Color: c.Color, Icon: c.Icon})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Added category %q (%s)\n", cat.Name, cat.ID)
	return nil
}

type CategoryListCmd struct{}

func (c *CategoryListCmd) Run(ctx *cli.Context) error {
	cats, err := ctx.Habits.Categories(context.Background())
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		fmt.Println("No categories found.")
		return nil
	}
	for _, cat := range cats {
		fmt.Printf("%-14s %s %s\n", cat.ID, cat.Name, cli.MutedStyle.Render(cat.Color))
	}
	return nil
}

type CategoryEditCmd struct {
	ID    string `arg:"" help:"Category id."`
	Name  string `help:"New name."`
	Color string `help:"New display color (hex)."`
	Icon  string `help:"New icon name."`
}

func (c *CategoryEditCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Habits.UpdateCategory(context.Background(), c.ID, habits.CategoryInput{Name: c.Name, Color: c.Color, Icon: c.Icon})
	if err != nil {
		return err
	}
	fmt.Printf("✓ Updated category %q\n", cat.Name)
	return nil
}

type CategoryDeleteCmd struct {
	ID string `arg:"" help:"Category id."`
}

func (c *CategoryDeleteCmd) Run(ctx *cli.Context) error {
	if err := ctx.Habits.DeleteCategory(context.Background(), c.ID); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted category %s; its habits now show as General\n", c.ID)
	return nil
}
