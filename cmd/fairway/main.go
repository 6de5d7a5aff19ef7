// Command fairway runs the mortgage decision core: an HTTP API over the
// application pipeline, plus operational subcommands for ledger verification
// and lending-profile inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/ledger"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(args[1:], stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServe(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "profile":
		return runProfile(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServe(args[1:], stdout, stderr)
		}
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fairway <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Run the decision core HTTP server (default)")
	fmt.Fprintln(w, "  verify   Verify a persisted decision ledger's hash chain")
	fmt.Fprintln(w, "  profile  Print the active lending profile")
	fmt.Fprintln(w, "  help     Show this help")
}

// runVerify replays a persisted ledger and checks its hash chain.
func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("ledger-db", "data/ledger.db", "path to the ledger SQLite database")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	sink, err := ledger.OpenSQLiteSink(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "open ledger: %v\n", err)
		return 1
	}
	defer sink.Close()

	entries, err := sink.Entries(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "read ledger entries: %v\n", err)
		return 1
	}

	l := ledger.New(nil)
	if err := l.Restore(entries); err != nil {
		fmt.Fprintf(stderr, "ledger chain broken: %v\n", err)
		return 1
	}
	ok, detail := l.Verify()
	if !ok {
		fmt.Fprintf(stderr, "ledger verification FAILED: %s\n", detail)
		return 1
	}
	fmt.Fprintf(stdout, "ledger verified: %d entries, head %s\n", l.Length(), l.Head())
	return 0
}

// runProfile prints the lending profile the server would use.
func runProfile(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("profiles", "", "directory of lending profile YAML files (empty uses the built-in profile)")
	code := fs.String("jurisdiction", "us", "jurisdiction code")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	profile, err := loadProfile(*dir, *code)
	if err != nil {
		fmt.Fprintf(stderr, "load profile: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(profile); err != nil {
		fmt.Fprintf(stderr, "encode profile: %v\n", err)
		return 1
	}
	return 0
}

func loadProfile(dir, code string) (*config.LendingProfile, error) {
	if dir == "" {
		return config.DefaultProfile(), nil
	}
	return config.LoadProfile(dir, code)
}
