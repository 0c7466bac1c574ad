package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/versesync/versesync/internal/cli/output"
	"github.com/versesync/versesync/internal/cli/prompt"
	"github.com/versesync/versesync/internal/cli/timeutil"
	"github.com/versesync/versesync/pkg/config"
	"github.com/versesync/versesync/pkg/sync/models"
	"github.com/versesync/versesync/pkg/sync/store"
)

var userRole string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long: `Manage VerseSync users directly against the database.

These commands operate on the configured database without the server
running. For day-to-day user management prefer the admin web panel.

Examples:
  versesync user add alice
  versesync user add bob --role admin
  versesync user passwd alice
  versesync user role alice admin
  versesync user disable alice
  versesync user list`,
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Add a new user (prompts for password)",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userDeleteCmd = &cobra.Command{
	Use:     "delete <username>",
	Aliases: []string{"remove"},
	Short:   "Delete a user",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserDelete,
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all users",
	Args:    cobra.NoArgs,
	RunE:    runUserList,
}

var userPasswdCmd = &cobra.Command{
	Use:     "passwd <username>",
	Aliases: []string{"password"},
	Short:   "Change user password",
	Args:    cobra.ExactArgs(1),
	RunE:    runUserPasswd,
}

var userRoleCmd = &cobra.Command{
	Use:   "role <username> <role>",
	Short: "Change user role",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserRole,
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Enable a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserEnabled(args[0], true)
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Disable a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserEnabled(args[0], false)
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", models.MemberRoleName, "Role for the new user")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userDeleteCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userPasswdCmd)
	userCmd.AddCommand(userRoleCmd)
	userCmd.AddCommand(userEnableCmd)
	userCmd.AddCommand(userDisableCmd)
}

// openStore loads the configuration and opens the metadata store.
func openStore() (*store.GORMStore, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	return store.New(&cfg.Database)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	role, err := db.GetRole(ctx, userRole)
	if err != nil {
		return fmt.Errorf("unknown role %q", userRole)
	}

	password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", models.MinPasswordLength)
	if err != nil {
		return err
	}
	if err := models.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Enabled:      true,
		RoleID:       &role.ID,
	}
	if _, err := db.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User %q created with role %q\n", username, role.Name)
	return nil
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	if username == "admin" {
		return fmt.Errorf("the admin account cannot be deleted")
	}

	confirmed, err := prompt.Confirm(fmt.Sprintf("Delete user %q", username), false)
	if err != nil {
		if prompt.IsAborted(err) {
			return nil
		}
		return err
	}
	if !confirmed {
		return nil
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.DeleteUser(context.Background(), username); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	fmt.Printf("User %q deleted\n", username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	users, err := db.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	table := output.NewTableData("USERNAME", "ROLE", "STATUS", "LAST LOGIN")
	for _, u := range users {
		roleName := "-"
		if u.Role != nil {
			roleName = u.Role.Name
		}
		status := "enabled"
		if !u.Enabled {
			status = "disabled"
		}
		lastLogin := "never"
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.Local().Format(timeutil.LocalTimeFormat)
		}
		table.AddRow(u.Username, roleName, status, lastLogin)
	}

	return output.PrintTable(os.Stdout, table)
}

func runUserPasswd(cmd *cobra.Command, args []string) error {
	username := args[0]

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if _, err := db.GetUser(ctx, username); err != nil {
		return fmt.Errorf("user %q not found", username)
	}

	password, err := prompt.PasswordWithConfirmation("New password", "Confirm password", models.MinPasswordLength)
	if err != nil {
		return err
	}
	if err := models.ValidatePassword(password); err != nil {
		return err
	}

	hash, err := models.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := db.UpdatePassword(ctx, username, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Printf("Password updated for %q\n", username)
	return nil
}

func runUserRole(cmd *cobra.Command, args []string) error {
	username, roleName := args[0], strings.ToLower(args[1])

	if username == "admin" {
		return fmt.Errorf("the admin account role cannot be changed")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	user, err := db.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("user %q not found", username)
	}
	role, err := db.GetRole(ctx, roleName)
	if err != nil {
		return fmt.Errorf("unknown role %q", roleName)
	}

	user.RoleID = &role.ID
	if err := db.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	fmt.Printf("User %q now has role %q\n", username, role.Name)
	return nil
}

func setUserEnabled(username string, enabled bool) error {
	if username == "admin" && !enabled {
		return fmt.Errorf("the admin account cannot be disabled")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	user, err := db.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("user %q not found", username)
	}

	user.Enabled = enabled
	if err := db.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	if enabled {
		fmt.Printf("User %q enabled\n", username)
	} else {
		fmt.Printf("User %q disabled\n", username)
	}
	return nil
}
