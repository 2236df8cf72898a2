package auth

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quietgrove/backoffice/pkg/adminsdk"
)

var (
	username   string
	password   string
	otpCode    string
	otpMethod  string
	totpSecret string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the back-office API",
	Long: `Authenticates using the password grant and persists the token pair in
the configured credential store.

Accounts with a second factor enrolled get an OTP challenge. Supply the
code with --otp, or pass the shared secret with --totp-secret to have the
code generated (intended for service accounts in scripts; the secret can
also come from BACKOFFICE_TOTP_SECRET).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient()
		if err != nil {
			return err
		}

		if username == "" {
			fmt.Print("Username: ")
			reader := bufio.NewReader(os.Stdin)
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read username: %w", err)
			}
			username = strings.TrimSpace(line)
		}
		if password == "" {
			fmt.Print("Password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = string(raw)
		}

		err = c.Session.Login(cmd.Context(), username, password)

		var mfa *adminsdk.MFARequiredError
		if errors.As(err, &mfa) {
			code, cerr := resolveOTP(mfa)
			if cerr != nil {
				return cerr
			}
			err = c.Session.LoginOTP(cmd.Context(), mfa, otpMethod, code)
		}
		if err != nil {
			return err
		}

		id := c.Session.Identity()
		pterm.Success.Printf("Logged in as %s\n", id.DisplayName())
		pterm.Info.Printf("Session valid until %s\n", id.ExpiresAt.Format(time.RFC1123))
		return nil
	},
}

// resolveOTP produces the second-factor code: explicit flag first, then a
// generated TOTP code, then an interactive prompt.
func resolveOTP(challenge *adminsdk.MFARequiredError) (string, error) {
	if otpCode != "" {
		return otpCode, nil
	}

	if totpSecret == "" {
		totpSecret = os.Getenv("BACKOFFICE_TOTP_SECRET")
	}
	if totpSecret != "" {
		code, err := totp.GenerateCode(totpSecret, time.Now())
		if err != nil {
			return "", fmt.Errorf("failed to generate one-time code: %w", err)
		}
		return code, nil
	}

	pterm.Info.Printf("Second factor required, methods: %s\n", strings.Join(challenge.Methods, ", "))
	fmt.Print("One-time code: ")
	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return "", fmt.Errorf("failed to read one-time code: %w", err)
	}
	return code, nil
}

func init() {
	loginCmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	loginCmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when omitted; prefer the prompt)")
	loginCmd.Flags().StringVar(&otpCode, "otp", "", "One-time code for accounts with a second factor")
	loginCmd.Flags().StringVar(&otpMethod, "otp-method", "totp", "Second-factor method to complete the challenge with")
	loginCmd.Flags().StringVar(&totpSecret, "totp-secret", "", "TOTP shared secret used to generate the one-time code")
}
