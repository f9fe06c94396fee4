package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/foxzi/ingestdesk/internal/web/repository"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const minPasswordLength = 10

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a local user",
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE:  runUserList,
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete [email]",
	Short: "Delete a user and its sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var userResetPasswordCmd = &cobra.Command{
	Use:   "reset-password [email]",
	Short: "Reset the password of a local user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserResetPassword,
}

var (
	userEmail    string
	userPassword string
	userName     string
	userGroups   []string
	userYes      bool
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "User name")
	userCreateCmd.Flags().StringSliceVar(&userGroups, "groups", nil, "Groups granting roles, e.g. editors,uploaders")
	userCreateCmd.MarkFlagRequired("email")

	userDeleteCmd.Flags().BoolVarP(&userYes, "yes", "y", false, "Do not ask for confirmation")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userResetPasswordCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	password := userPassword
	if password == "" {
		password, err = promptPassword(cmd, "Enter password: ")
		if err != nil {
			return err
		}
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	users := repository.NewUserRepository(database.DB)
	if _, err := users.CreateLocal(userEmail, userName, password, userGroups); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return fmt.Errorf("user with email %s already exists", userEmail)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s created successfully\n", userEmail)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	users, err := repository.NewUserRepository(database.DB).List()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-30s  %-20s  %-6s  %-24s  %s\n", "Email", "Name", "Source", "Groups", "Created")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, u := range users {
		fmt.Fprintf(w, "%-30s  %-20s  %-6s  %-24s  %s\n",
			u.Email, u.Name, u.Provider, strings.Join(u.Groups, ","), u.CreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	email := args[0]

	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	if !userYes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Are you sure you want to delete user %s?", email)) {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
		return nil
	}

	removed, err := repository.NewUserRepository(database.DB).Delete(email)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("user %s not found", email)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "User %s deleted\n", email)
	return nil
}

func runUserResetPassword(cmd *cobra.Command, args []string) error {
	email := args[0]

	_, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	password, err := promptPassword(cmd, "Enter new password: ")
	if err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	ok, err := repository.NewUserRepository(database.DB).SetPassword(email, password)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("local user %s not found", email)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Password for %s updated successfully\n", email)
	return nil
}

// promptPassword asks twice on a terminal. Piped input is read as a single
// line without confirmation.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	out := cmd.OutOrStdout()
	in := cmd.InOrStdin()

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(out, prompt)
	first, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(int(f.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(out)

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}

func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
