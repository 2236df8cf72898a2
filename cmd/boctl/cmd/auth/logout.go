package auth

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		// Revokes the refresh token server-side when one exists, then
		// clears the store either way.
		c.Session.Logout(cmd.Context())
		fmt.Println("Logged out successfully")
		return nil
	},
}
