package auth

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current access token",
	Long: `Prints the stored access token to stdout for use in scripts, e.g.

	curl -H "Authorization: Bearer $(boctl auth token)" ...

A token inside the expiry margin is refreshed first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		if err := c.Session.Restore(cmd.Context()); err != nil {
			return fmt.Errorf("failed to restore session: %w", err)
		}

		tok := c.Session.Token()
		if tok == "" {
			return fmt.Errorf("not logged in")
		}
		fmt.Println(tok)
		return nil
	},
}
