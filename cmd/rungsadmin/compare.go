package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ts4z/rungs/compare"
	"github.com/ts4z/rungs/config"
	"github.com/ts4z/rungs/shareurl"
)

// selectionFromLink takes a share link in any of the shapes people paste:
// a full URL, a path with a query, or just the query.
func selectionFromLink(link string) (*shareurl.Selection, error) {
	q := link
	if i := strings.IndexByte(link, '?'); i >= 0 {
		q = link[i+1:]
	}
	values, err := url.ParseQuery(q)
	if err != nil {
		return nil, fmt.Errorf("can't read link %q: %w", link, err)
	}
	return shareurl.Decode(values)
}

// printView writes each game's ladder, marking the anchor with * and the
// tier matched to it with >.
func printView(out io.Writer, v *compare.View) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	for _, g := range v.Games {
		fmt.Fprintf(w, "== %s (version %d)\n", g.Game.Name, g.VersionID)
		if !g.HasLadder {
			fmt.Fprintf(w, "   (no ladder)\n")
			continue
		}
		for _, r := range g.Ranks {
			for _, t := range r.Tiers {
				mark := " "
				switch {
				case t.Selected:
					mark = "*"
				case t.Highlighted:
					mark = ">"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", mark, t.ID, t.Label)
			}
		}
	}
	fmt.Fprintf(w, "\nshare: %s\n", v.ShareURL)
	return w.Flush()
}

func runCompare(cmd *cobra.Command, args []string) error {
	sel, err := selectionFromLink(args[0])
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	loaded, err := compare.NewLoader(storage, config.FetchConcurrency()).Load(ctx, sel)
	if err != nil {
		return err
	}
	for _, n := range loaded.Notices {
		fmt.Fprintf(os.Stderr, "note: %s\n", n.Message)
	}
	return printView(os.Stdout, loaded.Coordinator.View())
}

func compareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare [link]",
		Short: "Show the comparison a share link describes, e.g. '?games=1,2&tierId=42'",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompare,
	}
}
