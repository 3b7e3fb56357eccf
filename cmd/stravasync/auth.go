package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"stravasync/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Strava API credentials",
	Long: `Manage stored Strava API credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store Strava API credentials securely",
	Long: `Store Strava API credentials in the system keychain or an encrypted file.

You will be prompted for:
  - Client ID
  - Client Secret (hidden)
  - Refresh Token (hidden)

To get these values:
1. Create an API application at https://www.strava.com/settings/api
2. Copy the Client ID and Client Secret
3. Complete the OAuth authorization flow once to obtain a refresh token
   with activity:read_all scope`,
	Example: `  # Store credentials under the default profile
  stravasync auth login

  # Store a named profile
  stravasync auth login racing`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// authListCmd represents the auth list command
var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential profiles",
	Long:  `List all stored credential profiles with secrets masked.`,
	RunE:  runAuthList,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:     "logout [profile]",
	Aliases: []string{"remove"},
	Short:   "Remove stored credentials",
	Long:  `Remove stored Strava credentials for a profile (default profile if none given).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profileName := auth.DefaultProfile
	if len(args) > 0 {
		profileName = strings.TrimSpace(args[0])
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(profileName); existing != nil {
		fmt.Printf("Profile '%s' already exists. Update credentials? (y/N): ", profileName)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("Client ID: ")
	clientID, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read client ID: %w", err)
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return fmt.Errorf("client ID is required")
	}

	fmt.Print("Client Secret: ")
	clientSecret, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read client secret: %w", err)
	}
	if clientSecret == "" {
		return fmt.Errorf("client secret is required")
	}

	fmt.Print("Refresh Token: ")
	refreshToken, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refreshToken == "" {
		return fmt.Errorf("refresh token is required")
	}

	creds := &auth.Credentials{
		Profile:      profileName,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	}

	if err := manager.Store(creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Printf("\nCredentials stored for profile '%s'.\n", profileName)
	fmt.Println("Run 'stravasync sync' to start mirroring your activities.")
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profiles, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	if len(profiles) == 0 {
		fmt.Println("No stored profiles. Use 'stravasync auth login' to add one.")
		return nil
	}

	for i, creds := range profiles {
		fmt.Printf("%d. Profile: %s\n", i+1, creds.Profile)
		fmt.Printf("   Client ID:     %s\n", creds.ClientID)
		fmt.Printf("   Client Secret: %s\n", maskSecret(creds.ClientSecret))
		fmt.Printf("   Refresh Token: %s\n", maskSecret(creds.RefreshToken))
		fmt.Printf("   Last Modified: %s\n", creds.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	profileName := auth.DefaultProfile
	if len(args) > 0 {
		profileName = strings.TrimSpace(args[0])
	}

	if err := manager.Delete(profileName); err != nil {
		return err
	}

	fmt.Printf("Removed credentials for profile '%s'.\n", profileName)
	return nil
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
