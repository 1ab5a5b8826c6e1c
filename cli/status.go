// ABOUTME: Status CLI command showing sync health at a glance
// ABOUTME: Reports connectivity, queue depths, and last successful sync time
package cli

import (
	"flag"
	"fmt"
)

// StatusCommand prints the current sync status.
func StatusCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	status, err := r.Engine.Status()
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}

	connectivity := "offline"
	if status.IsOnline {
		connectivity = "online"
	}
	fmt.Printf("Network:     %s\n", connectivity)
	fmt.Printf("Pending:     %d\n", status.PendingCount)
	fmt.Printf("Failed:      %d\n", status.FailedCount)

	lastSync := "never"
	if status.LastSyncAt != nil {
		lastSync = status.LastSyncAt.Local().Format("2006-01-02 15:04:05")
	}
	fmt.Printf("Last sync:   %s\n", lastSync)

	if status.IsSyncing {
		fmt.Println("Syncing:     in progress")
	}
	if status.Degraded {
		fmt.Println("⚠ Sync is degraded: repeated passes have failed to reach the server")
	}
	if status.FailedCount > 0 {
		fmt.Println("\nRun 'relay failed' to review rejected changes.")
	}

	return nil
}
