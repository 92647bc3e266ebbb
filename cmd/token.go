package cmd

import (
	"fmt"
	"log"
	"time"

	"versionvibe/config"
	"versionvibe/core/auth"
	"versionvibe/db"
	"versionvibe/repository"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <username> <password>",
	Short: "Mint an access token for a user",
	Long:  `Verify a user's credentials against the database and print a signed access token, useful for testing the API.`,
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.DB.Close()

		users := repository.NewMySQLUserRepository(db.DB)
		user, err := users.GetUserByUsername(args[0])
		if err != nil {
			log.Fatalf("Failed to look up user: %v", err)
		}
		if user == nil || !auth.CheckPasswordHash(args[1], user.PasswordHash) {
			log.Fatal("Invalid username or password")
		}

		token, err := auth.GenerateToken(cfg.JWTSecret, user.ID, user.Username, user.DisplayName, user.AvatarURL, 24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to sign token: %v", err)
		}
		fmt.Println(token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
