// ABOUTME: Setup CLI command for device and server configuration
// ABOUTME: Generates a device ID and persists server, user, and token settings
package cli

import (
	"flag"
	"fmt"

	"github.com/harperreed/relay/engine"
)

// InitCommand configures the sync client for a server and user.
func InitCommand(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	server := fs.String("server", "", "Sync server base URL (e.g. https://sync.example.com)")
	user := fs.String("user", "", "User ID for the local replica")
	token := fs.String("token", "", "Access token for the sync server")
	refreshToken := fs.String("refresh-token", "", "Refresh token (optional, enables token refresh)")
	_ = fs.Parse(args)

	cfg, err := engine.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *server != "" {
		cfg.Server = *server
	}
	if *user != "" {
		cfg.UserID = *user
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *refreshToken != "" {
		cfg.RefreshToken = *refreshToken
	}

	if cfg.DeviceID == "" {
		cfg.DeviceID = engine.GenerateDeviceID()
		fmt.Printf("✓ Generated new device ID: %s\n", cfg.DeviceID)
	} else {
		fmt.Printf("✓ Device already initialized: %s\n", cfg.DeviceID)
	}

	if err := engine.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Configuration saved to %s\n", engine.ConfigPath())
	if !cfg.IsConfigured() {
		fmt.Println("\nStill missing settings: server, user, and token are all required.")
	}

	return nil
}
