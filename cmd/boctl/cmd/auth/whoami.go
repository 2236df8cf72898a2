package auth

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Fetch the user profile from the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		if err := c.Session.Restore(cmd.Context()); err != nil {
			return fmt.Errorf("failed to restore session: %w", err)
		}

		info, err := c.UserInfo(cmd.Context())
		if err != nil {
			return err
		}

		pterm.DefaultSection.Println("User")
		pterm.Info.Printf("ID: %s\n", info.ID)
		pterm.Info.Printf("Username: %s\n", info.Username)
		pterm.Info.Printf("Email: %s\n", info.Email)
		if info.FirstName != "" || info.LastName != "" {
			pterm.Info.Printf("Name: %s %s\n", info.FirstName, info.LastName)
		}
		pterm.Info.Printf("Roles: %s\n", strings.Join(info.Roles, ", "))
		return nil
	},
}
