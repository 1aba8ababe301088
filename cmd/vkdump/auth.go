package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vkdump/pkg/auth"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage VK access tokens",
	Long: `Manage stored VK access tokens.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read-only fallback)

Never share your tokens or config files.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [label]",
	Short: "Store a VK access token securely",
	Long: `Store a VK access token in the system keychain or encrypted file.

To obtain a token, create a standalone VK application and authorize it
at https://oauth.vk.com/authorize with the scopes your dumps need
(groups, wall, photos, docs, video, board, stats), then copy the
access_token value from the redirect URL.`,
	Example: `  # Store the default token
  vkdump auth login

  # Store a second token under a label
  vkdump auth login admin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var removeCmd = &cobra.Command{
	Use:   "remove [label]",
	Short: "Remove a stored token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRemove,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tokens",
	Long:  `List all stored tokens with their values masked.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(removeCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	label := auth.DefaultLabel
	if len(args) > 0 {
		label = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if existing, _ := manager.Retrieve(label); existing != nil {
		fmt.Printf("Token %q already exists. Replace it? (y/N): ", label)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	fmt.Print("VK access token (input is hidden): ")
	token, err := readSecret()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if len(token) < 20 {
		return fmt.Errorf("that does not look like a VK access token")
	}

	if err := manager.Store(&auth.Token{Label: label, AccessToken: token}); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	fmt.Printf("Token stored as %q.\n", label)
	fmt.Println("Archive a community with: vkdump dump <community>")
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	label := auth.DefaultLabel
	if len(args) > 0 {
		label = args[0]
	}

	if err := manager.Delete(label); err != nil {
		return fmt.Errorf("failed to remove token %q: %w", label, err)
	}
	fmt.Printf("Token %q removed.\n", label)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	tokens, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list tokens: %w", err)
	}

	if len(tokens) == 0 {
		fmt.Println("No stored tokens. Use 'vkdump auth login' to add one.")
		return nil
	}

	for i, token := range tokens {
		safe := auth.Sanitize(token)
		fmt.Printf("%d. %s\n", i+1, safe.Label)
		fmt.Printf("   Token: %s\n", safe.AccessToken)
		fmt.Printf("   Last modified: %s\n", safe.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// readSecret reads a line from stdin without echoing when attached to a
// terminal.
func readSecret() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
