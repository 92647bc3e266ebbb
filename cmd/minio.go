package cmd

import (
	"fmt"
	"log"

	"versionvibe/config"
	"versionvibe/storage"

	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Test the MinIO connection",
	Long:  `Connect to the configured MinIO server and verify the audio bucket is reachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection established.")

		if err := storage.TestMinio(cfg); err != nil {
			log.Fatalf("MinIO bucket check failed: %v", err)
		}
		fmt.Println("MinIO bucket check succeeded.")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
