package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cometa-fiber/fieldsync/internal/config"
)

var (
	initRemoteURL  string
	initAPIKey     string
	initBlobHost   string
	initBlobKey    string
	initBlobSecret string
	initBlobBucket string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Create ~/.config/fieldsync/config.yaml with the backend connection
settings. Refuses to overwrite an existing config.`,
	Run: func(cmd *cobra.Command, args []string) {
		if initRemoteURL == "" {
			fmt.Fprintf(os.Stderr, "Error: --remote-url is required\n")
			os.Exit(1)
		}

		path := configPath
		if path == "" {
			var err error
			path, err = config.Path()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		cfg := &config.Config{
			RemoteURL: initRemoteURL,
			APIKey:    initAPIKey,
		}
		cfg.Blob.Endpoint = initBlobHost
		cfg.Blob.AccessKey = initBlobKey
		cfg.Blob.SecretKey = initBlobSecret
		cfg.Blob.Bucket = initBlobBucket
		if cfg.Blob.Bucket == "" {
			cfg.Blob.Bucket = "photos"
		}

		if err := config.WriteDefault(path, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written to %s\n", path)
	},
}

func init() {
	initCmd.Flags().StringVar(&initRemoteURL, "remote-url", "", "backend API base URL")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "backend anonymous API key")
	initCmd.Flags().StringVar(&initBlobHost, "blob-endpoint", "", "S3-compatible blob store endpoint")
	initCmd.Flags().StringVar(&initBlobKey, "blob-access-key", "", "blob store access key")
	initCmd.Flags().StringVar(&initBlobSecret, "blob-secret-key", "", "blob store secret key")
	initCmd.Flags().StringVar(&initBlobBucket, "blob-bucket", "photos", "blob store bucket")
}
