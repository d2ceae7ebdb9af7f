// Command herbtrace-verify resolves a product batch from the configured
// store and prints its frozen provenance chain as JSON, the consumer-facing
// verification path for a scanned QR code.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"herbtrace/internal/core"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("herbtrace-verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		batchID string
		zones   bool
		recalls bool
	)
	fs.StringVar(&batchID, "batch", "", "product batch identifier to verify")
	fs.BoolVar(&zones, "zones", false, "print the approved zone configuration and exit")
	fs.BoolVar(&recalls, "recalls", false, "print recall notices and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := run(batchID, zones, recalls, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "herbtrace-verify: %v\n", err)
		return 1
	}
	return 0
}

func run(batchID string, zones, recalls bool, stdout, stderr io.Writer) error {
	ctx := context.Background()
	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine(cfg))
	if err != nil {
		return err
	}
	svc, err := core.NewService(ctx, store, cfg,
		core.WithLogger(slog.New(slog.NewTextHandler(stderr, nil))))
	if err != nil {
		return err
	}

	switch {
	case zones:
		return printJSON(stdout, svc.ListApprovedZones(ctx))
	case recalls:
		return printJSON(stdout, svc.ListRecallNotices(ctx))
	case batchID != "":
		batch, err := svc.GetProvenance(ctx, batchID)
		if err != nil {
			return err
		}
		return printJSON(stdout, batch)
	default:
		return fmt.Errorf("one of -batch, -zones, or -recalls is required")
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
