// ABOUTME: Sync CLI commands for one-shot and long-running synchronization
// ABOUTME: Runs a single drain pass, lists effective entities, or runs the daemon loop
package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
)

// SyncCommand runs a single synchronization pass and reports the result.
func SyncCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	r.Monitor.Start(ctx)

	if !r.Monitor.IsOnline() {
		return fmt.Errorf("server is unreachable, queued changes will sync when back online")
	}

	r.Engine.Refresh()
	r.Engine.DrainOnce(ctx)

	status, err := r.Engine.Status()
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}

	fmt.Printf("✓ Sync pass complete: %d pending, %d failed\n", status.PendingCount, status.FailedCount)
	if status.FailedCount > 0 {
		fmt.Println("Some changes were rejected; run 'relay failed' to review.")
	}
	return nil
}

// EntitiesCommand lists the effective local view of an entity type,
// server snapshots with pending local changes applied on top.
func EntitiesCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("entities", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay entities <entity-type>")
	}

	entityType := fs.Arg(0)
	entities, err := r.Engine.Entities(entityType)
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	if len(entities) == 0 {
		fmt.Printf("No %s entities\n", entityType)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tUPDATED\tPAYLOAD")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------")
	for _, e := range entities {
		updated := ""
		if !e.UpdatedAt.IsZero() {
			updated = e.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, updated, string(e.Payload))
	}
	_ = w.Flush()

	return nil
}

// DaemonCommand runs the sync engine until interrupted, draining the
// queue whenever the network monitor reports the server reachable.
func DaemonCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.Monitor.Start(ctx)
	r.Engine.Start(ctx)

	log.Printf("Sync daemon started (server: %s, device: %s)", r.Config.Server, r.Config.DeviceID)
	if r.Monitor.IsOnline() {
		log.Println("Server reachable, draining queue")
	} else {
		log.Println("Server unreachable, waiting for connectivity")
	}

	<-ctx.Done()
	log.Println("Sync daemon stopping")
	return nil
}
