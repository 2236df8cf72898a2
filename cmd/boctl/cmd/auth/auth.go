// Package auth holds the boctl commands that manage the login session.
package auth

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietgrove/backoffice/pkg/adminsdk"
)

var client *adminsdk.Client

// AuthCmd is the parent command for session operations.
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the login session",
	Long:  `Commands for logging in and out and inspecting the session state.`,
}

func init() {
	AuthCmd.AddCommand(loginCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
	AuthCmd.AddCommand(whoamiCmd)
	AuthCmd.AddCommand(tokenCmd)
}

// SetClient injects the shared API client, wired by the root command.
func SetClient(c *adminsdk.Client) {
	client = c
}

func apiClient() (*adminsdk.Client, error) {
	if client == nil {
		return nil, fmt.Errorf("api client not configured")
	}
	return client, nil
}
