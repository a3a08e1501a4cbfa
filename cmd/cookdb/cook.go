package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/rsned/cookdb/internal/cooking/catalog"
	"github.com/rsned/cookdb/internal/cooking/engine"
	"github.com/rsned/cookdb/pkg/cooking"
)

func runCook(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, verbose := newFlagSet("cook", stderr)
	catalogPath := fs.String("catalog", "", "Path to the catalog JSON file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required(fs, "catalog"); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: cookdb cook -catalog FILE NAME [NAME...]")
		return errUsage
	}
	logger := newLogger(stderr, *verbose)

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	eng, err := engine.New(cat, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	resp, err := eng.Cook(ctx, cooking.CookRequest{Ingredients: fs.Args()})
	if err != nil {
		return err
	}
	printDish(stdout, resp)
	return nil
}

func printDish(w io.Writer, resp *cooking.CookResponse) {
	r := resp.Recipe
	fmt.Fprintf(w, "%s\n", r.Name)
	fmt.Fprintf(w, "  ingredients: %s\n", strings.Join(resp.Ingredients, ", "))
	fmt.Fprintf(w, "  rank:        %s\n", humanize.Comma(int64(resp.Rank)))
	fmt.Fprintf(w, "  hearts:      %d (%d with crit)\n", r.Value, r.ValueWithCrit)
	fmt.Fprintf(w, "  crit chance: %d%%\n", r.Crit)
	fmt.Fprintf(w, "  effect:      %s\n", r.Effect)
	fmt.Fprintf(w, "  price:       %d\n", r.Price)
	if len(resp.Modifiers) > 0 {
		fmt.Fprintf(w, "  modifiers:   %s\n", strings.Join(resp.Modifiers, ", "))
	}
	fmt.Fprintf(w, "  record:      %#04x\n", resp.Record)
}
