// Command runpending processes the currently eligible uploads once and
// exits. It goes through the same admission controller as the server's
// scheduler loop, so eligibility is never re-derived.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"firmfeed/internal/admission"
	"firmfeed/internal/app"
	"firmfeed/internal/config"
)

func main() {
	var (
		mode   = flag.String("mode", "per_submitter", "Admission mode: per_submitter or unrestricted")
		dryRun = flag.Bool("dry-run", false, "List the eligible batch without processing it")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	a, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	ctx := context.Background()
	batch, err := a.Controller.NextEligibleBatch(ctx, admission.Mode(*mode))
	if err != nil {
		log.Fatal(err)
	}
	if len(batch) == 0 {
		fmt.Println("no eligible uploads")
		return
	}

	failures := 0
	for _, upload := range batch {
		fmt.Printf("%s  %s  %s  (%d rows)\n", upload.ID, upload.Submitter, upload.Filename, upload.RowCount)
		if *dryRun {
			continue
		}
		if err := a.Processor.ProcessUpload(ctx, upload); err != nil {
			fmt.Fprintf(os.Stderr, "  failed: %v\n", err)
			failures++
		}
	}

	if failures > 0 {
		os.Exit(1)
	}
}
