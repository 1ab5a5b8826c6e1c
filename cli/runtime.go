// ABOUTME: Shared runtime construction for CLI commands
// ABOUTME: Opens the action log, snapshot store, gateway, and engine from config
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/harperreed/relay/db"
	"github.com/harperreed/relay/engine"
	"github.com/harperreed/relay/gateway"
	"github.com/harperreed/relay/netmon"
	"github.com/harperreed/relay/snapshot"
)

// Runtime bundles everything a command needs to talk to the engine.
type Runtime struct {
	Config  *engine.Config
	Engine  *engine.Engine
	Monitor *netmon.Monitor

	database *sql.DB
	snaps    *snapshot.Store
}

// OpenRuntime loads configuration and wires up the full engine stack.
// Commands that only touch the local queue still go through here so
// every code path sees the same storage setup.
func OpenRuntime() (*Runtime, error) {
	cfg, err := engine.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("not configured: run 'relay init' first (config: %s)", engine.ConfigPath())
	}

	database, err := db.OpenDatabase(db.DatabasePath(cfg.UserID))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	snaps, err := snapshot.Open(db.SnapshotDir(cfg.UserID))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	creds := credentialsFromConfig(cfg)
	gw := gateway.NewClient(cfg.Server, creds)

	addr, err := probeAddr(cfg.Server)
	if err != nil {
		snaps.Close()
		database.Close()
		return nil, err
	}
	monitor := netmon.NewMonitor(netmon.DialProbe(addr))

	eng := engine.New(database, snaps, gw, creds, monitor, *cfg)

	return &Runtime{
		Config:   cfg,
		Engine:   eng,
		Monitor:  monitor,
		database: database,
		snaps:    snaps,
	}, nil
}

// Close releases the underlying stores.
func (r *Runtime) Close() {
	r.Monitor.Stop()
	r.snaps.Close()
	r.database.Close()
}

// credentialsFromConfig picks static or refreshable credentials based
// on whether a refresh token is present.
func credentialsFromConfig(cfg *engine.Config) gateway.CredentialSource {
	if cfg.RefreshToken == "" {
		return gateway.StaticCredentials(cfg.Token)
	}
	oc := &oauth2.Config{
		Endpoint: oauth2.Endpoint{TokenURL: cfg.Server + "/v1/auth/token"},
	}
	token := &oauth2.Token{
		AccessToken:  cfg.Token,
		RefreshToken: cfg.RefreshToken,
	}
	return gateway.NewOAuthCredentials(oc.TokenSource(context.Background(), token))
}

// probeAddr derives the host:port the reachability probe dials from
// the configured server URL.
func probeAddr(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", server, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", server)
	}
	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(host, port)
	}
	return host, nil
}
