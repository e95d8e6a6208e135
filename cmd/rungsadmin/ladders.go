package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ts4z/rungs/ladder"
	"github.com/ts4z/rungs/ladderfile"
	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/textutil"
)

var (
	gameBanner  string
	versionDate string
	fileFormat  string
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not an ID", s)
	}
	return id, nil
}

// parseVersionDate takes a plain date or a full RFC3339 time.  Empty is
// today.
func parseVersionDate(now time.Time, s string) (time.Time, error) {
	if s == "" {
		return now.Truncate(24 * time.Hour), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("can't read date %q (want YYYY-MM-DD)", s)
}

// formatFor resolves --format, falling back to the file's extension.
func formatFor(path string) (ladderfile.Format, error) {
	if fileFormat != "" {
		return ladderfile.ParseFormat(fileFormat)
	}
	if path == "" || path == "-" {
		return ladderfile.CSV, nil
	}
	return ladderfile.FormatForPath(path)
}

func listGames(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	games, err := storage.FetchGames(ctx)
	if err != nil {
		return fmt.Errorf("fetching games: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "id\tname\tbanner\n")
	for _, g := range games {
		fmt.Fprintf(w, "%d\t%s\t%s\n", g.ID, g.Name, g.Banner)
	}
	return w.Flush()
}

func addGame(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	id, err := storage.CreateGame(ctx, &model.Game{Name: args[0], Banner: gameBanner})
	if err != nil {
		return fmt.Errorf("creating game: %w", err)
	}
	fmt.Printf("Game %q added with id %d.\n", args[0], id)
	return nil
}

func deleteGame(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	if err := storage.DeleteGame(ctx, id); err != nil {
		return fmt.Errorf("deleting game %d: %w", id, err)
	}
	return nil
}

func listVersions(cmd *cobra.Command, args []string) error {
	gameID, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	versions, err := storage.FetchVersions(ctx, gameID)
	if err != nil {
		return fmt.Errorf("fetching versions of game %d: %w", gameID, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "id\tname\tdate\n")
	for _, v := range versions {
		fmt.Fprintf(w, "%d\t%s\t%s\n", v.ID, v.Name, v.Date.Format(time.DateOnly))
	}
	return w.Flush()
}

func addVersion(cmd *cobra.Command, args []string) error {
	gameID, err := parseID(args[0])
	if err != nil {
		return err
	}
	date, err := parseVersionDate(clock.Now(), versionDate)
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	id, err := storage.CreateVersion(ctx, &model.GameVersion{GameID: gameID, Name: args[1], Date: date})
	if err != nil {
		return fmt.Errorf("creating version: %w", err)
	}
	fmt.Printf("Version %q added with id %d.\n", args[1], id)
	return nil
}

func importLadder(cmd *cobra.Command, args []string) error {
	versionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	path := "-"
	if len(args) > 1 {
		path = args[1]
	}
	format, err := formatFor(path)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ranks, err := ladderfile.Read(in, format)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	ctx, storage := openStorage()
	defer storage.Close()

	l := &model.Ladder{VersionID: versionID, Ranks: ranks}
	if err := storage.SaveLadder(ctx, l); err != nil {
		return fmt.Errorf("saving ladder for version %d: %w", versionID, err)
	}
	total := ladder.NewIndex(ranks).Total()
	fmt.Printf("Saved %d ranks, %d tiers, covering %s.\n", len(ranks), l.TierCount(), textutil.FormatPercent(total))
	return nil
}

func exportLadder(cmd *cobra.Command, args []string) error {
	versionID, err := parseID(args[0])
	if err != nil {
		return err
	}
	path := "-"
	if len(args) > 1 {
		path = args[1]
	}
	format, err := formatFor(path)
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	l, err := storage.FetchLadder(ctx, versionID)
	if err != nil {
		return fmt.Errorf("fetching ladder for version %d: %w", versionID, err)
	}

	if path == "-" {
		return ladderfile.Write(os.Stdout, format, l.Ranks)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ladderfile.Write(f, format, l.Ranks); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printLadder writes one line per tier with its running total.
func printLadder(out io.Writer, l *model.Ladder) error {
	ix := ladder.NewIndex(l.Ranks)
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "tier id\trank\ttier\tpercentile\taccumulated\n")
	for _, r := range l.Ranks {
		for _, t := range r.Tiers {
			acc, _ := ix.Accumulated(r.ID, t.ID)
			pct := "-"
			if t.Percentile != nil {
				pct = textutil.FormatPercent(*t.Percentile)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, r.Name, t.Name, pct, textutil.FormatPercent(acc))
		}
	}
	return w.Flush()
}

func showLadder(cmd *cobra.Command, args []string) error {
	versionID, err := parseID(args[0])
	if err != nil {
		return err
	}

	ctx, storage := openStorage()
	defer storage.Close()

	l, err := storage.FetchLadder(ctx, versionID)
	if err != nil {
		return fmt.Errorf("fetching ladder for version %d: %w", versionID, err)
	}
	return printLadder(os.Stdout, l)
}

func gameCommand() *cobra.Command {
	gameCmd := &cobra.Command{
		Short: "Manage games",
		Use:   "game",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all games",
		RunE:  listGames,
	}

	addCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a game",
		Args:  cobra.ExactArgs(1),
		RunE:  addGame,
	}
	addCmd.Flags().StringVar(&gameBanner, "banner", "", "Banner image URL")

	deleteCmd := &cobra.Command{
		Use:   "delete [game id]",
		Short: "Delete a game with all its versions and ladders",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteGame,
	}

	gameCmd.AddCommand(listCmd, addCmd, deleteCmd)
	return gameCmd
}

func versionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Short: "Manage game versions",
		Use:   "version",
	}

	listCmd := &cobra.Command{
		Use:   "list [game id]",
		Short: "List a game's versions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  listVersions,
	}

	addCmd := &cobra.Command{
		Use:   "add [game id] [name]",
		Short: "Add a version to a game",
		Args:  cobra.ExactArgs(2),
		RunE:  addVersion,
	}
	addCmd.Flags().StringVar(&versionDate, "date", "", "Date of the version (YYYY-MM-DD, default today)")

	versionCmd.AddCommand(listCmd, addCmd)
	return versionCmd
}

func ladderCommand() *cobra.Command {
	ladderCmd := &cobra.Command{
		Short: "Import, export and inspect ladders",
		Use:   "ladder",
	}

	importCmd := &cobra.Command{
		Use:   "import [version id] [file]",
		Short: "Replace a version's ladder with the contents of a file (or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  importLadder,
	}
	importCmd.Flags().StringVar(&fileFormat, "format", "", "csv or yaml (default: from the file extension)")

	exportCmd := &cobra.Command{
		Use:   "export [version id] [file]",
		Short: "Write a version's ladder to a file (or stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  exportLadder,
	}
	exportCmd.Flags().StringVar(&fileFormat, "format", "", "csv or yaml (default: from the file extension)")

	showCmd := &cobra.Command{
		Use:   "show [version id]",
		Short: "Print a version's ladder with accumulated percentiles",
		Args:  cobra.ExactArgs(1),
		RunE:  showLadder,
	}

	ladderCmd.AddCommand(importCmd, exportCmd, showCmd)
	return ladderCmd
}
