package main

import (
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"maze.io/x/duration"

	"github.com/ts4z/rungs/password"
)

var (
	userNick    string
	userEmail   string
	userIsAdmin bool

	expireTime time.Time
)

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pwBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(pwBytes) == 0 {
		return "", fmt.Errorf("password is required")
	}
	return string(pwBytes), nil
}

// parseExpireTime accepts an RFC3339 time, or a duration from now such as
// "30d" or "12h".  Empty means now.
func parseExpireTime(now time.Time, s string) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := duration.ParseDuration(s); err == nil {
		return now.Add(time.Duration(d)), nil
	}
	return time.Time{}, fmt.Errorf("%q is neither an RFC3339 time nor a duration", s)
}

func addUser(cmd *cobra.Command, args []string) error {
	if userNick == "" || userEmail == "" {
		return fmt.Errorf("nick and email are required")
	}

	ctx, storage := openStorage()
	defer storage.Close()

	pw, err := readPassword("Enter password: ")
	if err != nil {
		return err
	}
	hashed, err := password.Hash(pw)
	if err != nil {
		return err
	}

	if err := storage.CreateUser(ctx, userNick, userEmail, hashed, userIsAdmin); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	fmt.Printf("User %q added successfully.\n", userNick)
	return nil
}

func listUsers(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	users, err := storage.FetchUsers(ctx)
	if err != nil {
		return fmt.Errorf("fetching users: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "id\tnick\temail\tadmin\n")
	for _, user := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", user.ID, user.Nick, user.Email, user.IsAdmin)
	}
	return w.Flush()
}

func deleteUser(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	nick := args[0]
	if err := storage.DeleteUserByNick(ctx, nick); err != nil {
		return fmt.Errorf("deleting user %q: %w", nick, err)
	}
	return nil
}

func checkPassword(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	nick := args[0]
	pw, err := readPassword("Enter password: ")
	if err != nil {
		return err
	}

	userRow, err := storage.FetchUserRow(ctx, nick)
	if err != nil {
		return fmt.Errorf("fetching user %q: %w", nick, err)
	}

	checker, err := password.NewChecker(clock, userRow)
	if err != nil {
		return fmt.Errorf("setting up password checker: %w", err)
	}

	if _, err := checker.Validate(pw); err != nil {
		fmt.Printf("error: %v\n", err)
		return nil
	}

	fmt.Printf("ok\n")
	return nil
}

func cleanPasswords(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	return storage.RemoveExpiredPasswords(ctx, clock.Now())
}

func addPassword(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	nick := args[0]
	userRow, err := storage.FetchUserRow(ctx, nick)
	if err != nil {
		return fmt.Errorf("fetching user %q: %w", nick, err)
	}

	pw, err := readPassword("Enter password: ")
	if err != nil {
		return err
	}
	hashed, err := password.Hash(pw)
	if err != nil {
		return err
	}

	if err := storage.AddPassword(ctx, userRow.ID, hashed); err != nil {
		return fmt.Errorf("adding password for user %q: %w", nick, err)
	}

	fmt.Printf("Password added successfully for user %q.\n", nick)
	return nil
}

func replacePassword(cmd *cobra.Command, args []string) error {
	ctx, storage := openStorage()
	defer storage.Close()

	nick := args[0]
	userRow, err := storage.FetchUserRow(ctx, nick)
	if err != nil {
		return fmt.Errorf("fetching user %q: %w", nick, err)
	}

	pw, err := readPassword("Enter new password: ")
	if err != nil {
		return err
	}
	hashed, err := password.Hash(pw)
	if err != nil {
		return err
	}

	if expireTime.IsZero() {
		expireTime = clock.Now()
	}
	if err := storage.ReplacePassword(ctx, userRow.ID, hashed, expireTime); err != nil {
		return fmt.Errorf("replacing password for user %q: %w", nick, err)
	}

	fmt.Printf("Password replaced successfully for user %q. Old passwords expire at %v.\n", nick, formatTime(expireTime))
	return nil
}

func userCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Short: "Manage users",
		Use:   "user",
	}

	addUserCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new user",
		RunE:  addUser,
	}
	addUserCmd.Flags().StringVar(&userNick, "nick", "", "User's nick")
	addUserCmd.Flags().StringVar(&userEmail, "email", "", "User's email address")
	addUserCmd.Flags().BoolVar(&userIsAdmin, "admin", false, "Set user as admin")

	deleteUserCmd := &cobra.Command{
		Use:   "delete [nick]",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteUser,
	}

	listUserCmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE:  listUsers,
	}

	pwCmd := &cobra.Command{
		Use:   "pw",
		Short: "Password-related operations for users",
	}

	checkCmd := &cobra.Command{
		Use:   "check [nick]",
		Short: "Check a user's password",
		Args:  cobra.ExactArgs(1),
		RunE:  checkPassword,
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove expired passwords",
		RunE:  cleanPasswords,
	}

	addPasswordCmd := &cobra.Command{
		Use:   "add [nick]",
		Short: "Add a password for a user",
		Args:  cobra.ExactArgs(1),
		RunE:  addPassword,
	}

	replacePasswordCmd := &cobra.Command{
		Use:   "replace [nick]",
		Short: "Replace a user's password and expire old passwords",
		Args:  cobra.ExactArgs(1),
		RunE:  replacePassword,
	}
	replacePasswordCmd.Flags().Func("expire-time", "When old passwords expire (RFC3339, or a duration like 7d; default now)", func(s string) error {
		t, err := parseExpireTime(clock.Now(), s)
		if err != nil {
			return err
		}
		expireTime = t
		return nil
	})

	pwCmd.AddCommand(checkCmd, cleanCmd, addPasswordCmd, replacePasswordCmd)
	userCmd.AddCommand(addUserCmd, listUserCmd, deleteUserCmd, pwCmd)
	return userCmd
}
