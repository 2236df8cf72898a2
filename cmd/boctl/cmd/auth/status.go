package auth

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the session state",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		if err := c.Session.Restore(cmd.Context()); err != nil {
			return fmt.Errorf("failed to restore session: %w", err)
		}
		if !c.Session.IsAuthenticated() {
			pterm.Warning.Println("Not logged in")
			return nil
		}

		id := c.Session.Identity()
		pterm.DefaultSection.Println("Session")
		pterm.Info.Printf("Signed in as: %s (%s)\n", id.DisplayName(), id.Email)
		pterm.Info.Printf("Token expires at: %s\n", id.ExpiresAt.Format(time.RFC1123))
		if !c.Session.IsTokenValid() {
			pterm.Warning.Println("Token is inside the expiry margin and will be refreshed on the next request")
		}

		pterm.DefaultSection.Println("Access")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROLES\tPERMISSIONS")
		fmt.Fprintf(w, "%s\t%s\n", strings.Join(setToSorted(id.Roles), ", "), strings.Join(setToSorted(id.Permissions), ", "))
		w.Flush()
		return nil
	},
}

func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
