package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ts4z/rungs/model"
	"github.com/ts4z/rungs/permission"
)

var (
	honorOffset  time.Duration
	mintDuration time.Duration
	startOffset  time.Duration
)

func getKeyStatus(now time.Time, v model.CookieKeyValidity) string {
	if now.Before(v.MintFrom) {
		return "not yet active"
	}
	if now.After(v.HonorUntil) {
		return "expired"
	}
	if now.After(v.MintUntil) {
		// it's an older code, but it checks out
		return "obsolete"
	}
	return "active"
}

func listKeys(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	sc, err := storage.FetchSiteConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching site config: %w", err)
	}

	now := clock.Now()
	fmt.Printf("Current keys (as of %v):\n\n", formatTime(now))

	for i, key := range sc.CookieKeys {
		fmt.Printf("Key %d:\n", i+1)
		fmt.Printf("  Mint window:  %v to %v\n",
			formatTime(key.Validity.MintFrom), formatTime(key.Validity.MintUntil))
		fmt.Printf("  Honor until: %v\n", formatTime(key.Validity.HonorUntil))
		fmt.Printf("  Status: %v\n\n", getKeyStatus(now, key.Validity))
	}
	return nil
}

// rotatedKeys drops what can no longer be honored and appends a fresh key.
func rotatedKeys(now time.Time, keys []model.CookieKeyPair) ([]model.CookieKeyPair, model.CookieKeyPair) {
	fresh := permission.NewCookieKeyPair(now.Add(startOffset), mintDuration, honorOffset)
	return append(permission.PruneCookieKeys(now, keys), fresh), fresh
}

func rotateKeys(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	sc, err := storage.FetchSiteConfig(ctx)
	if err != nil {
		return fmt.Errorf("fetching site config: %w", err)
	}

	var fresh model.CookieKeyPair
	sc.CookieKeys, fresh = rotatedKeys(clock.Now(), sc.CookieKeys)

	if err := storage.SaveSiteConfig(ctx, sc); err != nil {
		return fmt.Errorf("saving updated config: %w", err)
	}

	fmt.Printf("Key rotation complete:\n")
	fmt.Printf("  Start minting: %v\n", formatTime(fresh.Validity.MintFrom))
	fmt.Printf("  Stop minting:  %v\n", formatTime(fresh.Validity.MintUntil))
	fmt.Printf("  Honor until:   %v\n", formatTime(fresh.Validity.HonorUntil))
	return nil
}

func keyCommand() *cobra.Command {
	keyCmd := &cobra.Command{
		Short: "Manage authentication keys",
		Use:   "key",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List current keys and their status",
		RunE:  listKeys,
	}

	rotateCmd := &cobra.Command{
		Use:   "rotate",
		Short: "Remove expired keys and add a new key",
		RunE:  rotateKeys,
	}
	rotateCmd.Flags().DurationVar(&startOffset, "start-offset", 0, "How long to wait before the key becomes valid (e.g. 24h)")
	rotateCmd.Flags().DurationVar(&mintDuration, "mint-duration", 180*24*time.Hour, "How long the key should be valid for minting")
	rotateCmd.Flags().DurationVar(&honorOffset, "honor-offset", 180*24*time.Hour, "How long after minting ends to honor the key")

	keyCmd.AddCommand(listCmd, rotateCmd)
	return keyCmd
}
