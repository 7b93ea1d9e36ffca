package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/followgate/internal/identity"
	"github.com/tyemirov/followgate/internal/storage"
)

const (
	configCodeUsersRequireDatabase = "config.users_require_database_url"
	configCodeMissingUserField     = "config.missing_user_field"
)

func newUsersCommand() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts in the configured database",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account with a bcrypt-hashed password",
		RunE:  runUsersAdd,
	}
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("email", "", "Login e-mail address")
	addCmd.Flags().String("password", "", "Initial password")
	addCmd.Flags().String("account_type", identity.AccountTypePublic, "Account type (public or private)")
	addCmd.Flags().String("profile_pic", "", "Profile picture URL")

	usersCmd.AddCommand(addCmd)
	return usersCmd
}

func runUsersAdd(command *cobra.Command, arguments []string) error {
	databaseURL := strings.TrimSpace(viper.GetString("database_url"))
	if databaseURL == "" {
		return configError(configCodeUsersRequireDatabase, "database_url must be provided to manage accounts")
	}

	name, _ := command.Flags().GetString("name")
	email, _ := command.Flags().GetString("email")
	password, _ := command.Flags().GetString("password")
	accountType, _ := command.Flags().GetString("account_type")
	profilePic, _ := command.Flags().GetString("profile_pic")
	required := []struct {
		flagName string
		value    string
	}{
		{flagName: "name", value: name},
		{flagName: "email", value: email},
		{flagName: "password", value: password},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return configError(configCodeMissingUserField, field.flagName+" must be provided")
		}
	}

	ctx := command.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	account, err := createAccount(ctx, databaseURL, identity.NewIdentity{
		Name:        name,
		Email:       email,
		AccountType: accountType,
		ProfilePic:  profilePic,
	}, password)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(command.OutOrStdout(), "created %s <%s> id=%s type=%s\n", account.Name, account.Email, account.ID, account.AccountType)
	return nil
}

func createAccount(ctx context.Context, databaseURL string, candidate identity.NewIdentity, password string) (identity.Identity, error) {
	passwordHash, hashErr := identity.HashPassword(password)
	if hashErr != nil {
		return identity.Identity{}, hashErr
	}
	candidate.PasswordHash = passwordHash

	database, openErr := storage.Open(ctx, databaseURL)
	if openErr != nil {
		return identity.Identity{}, openErr
	}
	if sqlDB, sqlErr := database.DB.DB(); sqlErr == nil {
		defer func() { _ = sqlDB.Close() }()
	}
	store, storeErr := identity.NewDatabaseStore(ctx, database.DB, database.DriverLabel)
	if storeErr != nil {
		return identity.Identity{}, storeErr
	}
	return store.Create(ctx, candidate)
}
