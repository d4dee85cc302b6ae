// Package cli implements the seam command line interface.
package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/seamchat/seam/internal/config"
	"github.com/seamchat/seam/internal/logging"
	"github.com/seamchat/seam/internal/messageapi"
)

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "seam",
		Short:         "Merged conversation timeline client",
		Long:          "seam merges the client and internal message channels of a conversation into one live, paginated timeline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().String("config", "", "Config file path")

	cmd.AddCommand(
		newHistoryCmd(),
		newSendCmd(),
		newTailCmd(),
	)

	return cmd
}

// loadConfig resolves the configuration for a command invocation and
// initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	return cfg, nil
}

// newAPIClient builds the message API client from config.
func newAPIClient(cfg *config.Config) (*messageapi.HTTPClient, error) {
	client, err := messageapi.NewHTTPClient(cfg.API.BaseURL,
		messageapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("message api: %w", err)
	}
	return client, nil
}
