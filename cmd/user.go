package cmd

import (
	"fmt"
	"log"

	"versionvibe/config"
	"versionvibe/core/auth"
	"versionvibe/db"
	"versionvibe/model"
	"versionvibe/repository"

	"github.com/spf13/cobra"
)

var (
	userEmail       string
	userDisplayName string
)

var userCmd = &cobra.Command{
	Use:   "user <username> <password>",
	Short: "Create a user account",
	Long:  `Create a user account directly in the database. Sign-in flows live outside this service, so this is how accounts are seeded.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.DB.Close()

		if err := db.InitDB(); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}

		hash, err := auth.HashPassword(args[1])
		if err != nil {
			log.Fatalf("Failed to hash password: %v", err)
		}

		displayName := userDisplayName
		if displayName == "" {
			displayName = args[0]
		}

		users := repository.NewMySQLUserRepository(db.DB)
		id, err := users.CreateUser(&model.User{
			Username:     args[0],
			Email:        userEmail,
			PasswordHash: hash,
			DisplayName:  displayName,
		})
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("Created user %s (id %d)\n", args[0], id)
	},
}

func init() {
	userCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userCmd.Flags().StringVar(&userDisplayName, "display-name", "", "display name shown on comments")
	rootCmd.AddCommand(userCmd)
}
