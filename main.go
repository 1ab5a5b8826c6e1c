// ABOUTME: Entry point for the relay offline-first sync client
// ABOUTME: Routes CLI commands to the queue, sync, and daemon surfaces
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/harperreed/relay/cli"
)

const version = "0.1.0"

func main() {
	// Local overrides for server/token settings during development
	_ = godotenv.Load()

	showVersion := flag.Bool("version", false, "Show version and exit")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("relay version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// init runs before a runtime exists; everything else needs one
	if command == "init" {
		if err := cli.InitCommand(commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	runtime, err := cli.OpenRuntime()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer runtime.Close()

	switch command {
	case "status":
		if err := cli.StatusCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "sync":
		if err := cli.SyncCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "daemon":
		if err := cli.DaemonCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "enqueue":
		if err := cli.EnqueueCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "queue":
		if err := cli.QueueCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "failed":
		if err := cli.FailedCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "retry":
		if err := cli.RetryCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "discard":
		if err := cli.DiscardCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "entities":
		if err := cli.EntitiesCommand(runtime, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`relay - offline-first sync client

Usage:
  relay [flags] <command> [args]

Commands:
  init       Configure server, user, token, and device ID
  status     Show connectivity, queue depths, and last sync time
  sync       Run a single synchronization pass
  daemon     Run the sync engine until interrupted
  enqueue    Record a local mutation in the action log
  queue      List pending actions
  failed     List actions the server rejected
  retry      Move a failed action back to pending
  discard    Drop a failed action permanently
  entities   Show the effective local view of an entity type

Flags:
  -version   Show version and exit

Examples:
  relay init -server https://sync.example.com -user alice -token s3cret
  relay enqueue -kind create -type note -payload '{"title":"hello"}'
  relay sync
  relay daemon`)
}
