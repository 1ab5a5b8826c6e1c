// ABOUTME: Queue CLI commands for the durable action log
// ABOUTME: Enqueues offline actions and lists or resolves pending and failed entries
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/harperreed/relay/db"
	"github.com/harperreed/relay/models"
)

// EnqueueCommand records a local mutation in the action log.
func EnqueueCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	kind := fs.String("kind", models.KindUpdate, "Action kind (create/update/delete)")
	entityType := fs.String("type", "", "Entity type (e.g. note, task)")
	entityID := fs.String("id", "", "Entity ID (omit for create)")
	payload := fs.String("payload", "{}", "JSON payload for the mutation")
	_ = fs.Parse(args)

	if !json.Valid([]byte(*payload)) {
		return fmt.Errorf("payload is not valid JSON")
	}

	action, err := r.Engine.Enqueue(context.Background(), *kind, *entityType, *entityID, json.RawMessage(*payload))
	if err != nil {
		return fmt.Errorf("failed to enqueue action: %w", err)
	}

	fmt.Printf("✓ Enqueued %s %s (%s)\n", action.Kind, action.EntityType, action.ID)
	return nil
}

// QueueCommand lists actions waiting to be sent.
func QueueCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	_ = fs.Parse(args)

	pending, err := db.ListPendingActions(r.database)
	if err != nil {
		return fmt.Errorf("failed to list pending actions: %w", err)
	}

	if len(pending) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tENTITY\tATTEMPTS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t--------\t-------")
	for _, a := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Kind, a.GroupKey(), a.Attempt,
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()

	return nil
}

// FailedCommand lists actions the server rejected, with their errors.
func FailedCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("failed", flag.ExitOnError)
	_ = fs.Parse(args)

	failed, err := r.Engine.FailedActions()
	if err != nil {
		return fmt.Errorf("failed to list failed actions: %w", err)
	}

	if len(failed) == 0 {
		fmt.Println("No failed actions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tENTITY\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-----")
	for _, a := range failed {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Kind, a.GroupKey(), a.LastError)
	}
	_ = w.Flush()

	fmt.Println("\nUse 'relay retry <id>' or 'relay discard <id>' to resolve.")
	return nil
}

// RetryCommand moves a failed action back to pending.
func RetryCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay retry <action-id>")
	}

	id := fs.Arg(0)
	if err := r.Engine.RetryAction(id); err != nil {
		return fmt.Errorf("failed to retry action %s: %w", id, err)
	}

	fmt.Printf("✓ Action %s queued for retry\n", id)
	return nil
}

// DiscardCommand drops a failed action permanently.
func DiscardCommand(r *Runtime, args []string) error {
	fs := flag.NewFlagSet("discard", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: relay discard <action-id>")
	}

	id := fs.Arg(0)
	if err := r.Engine.DiscardAction(id); err != nil {
		return fmt.Errorf("failed to discard action %s: %w", id, err)
	}

	fmt.Printf("✓ Action %s discarded\n", id)
	return nil
}
