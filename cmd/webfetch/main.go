// Command webfetch fetches a single page through the enrichment browser
// client. Useful for checking what the enricher actually sees for a company
// website before blaming a row failure on the site.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"firmfeed/internal/webfetch"
)

func main() {
	var (
		url         = flag.String("url", "", "Target URL")
		outputFile  = flag.String("o", "", "Output file (default: stdout)")
		asJSON      = flag.Bool("json", false, "Emit the full result as JSON")
		stealth     = flag.Bool("stealth", true, "Enable stealth mode (bot detection evasion)")
		blockAds    = flag.Bool("block-ads", false, "Block ads")
		blockImages = flag.Bool("block-images", false, "Block images")
		waitTime    = flag.Int("wait", 0, "Selector wait timeout in milliseconds")
		selector    = flag.String("selector", "", "Wait for selector")
		timeout     = flag.Int("timeout", 60, "Timeout in seconds")
		verbose     = flag.Bool("v", false, "Verbose output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -url https://example.com\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -url https://example.com -json -o page.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -url https://example.com -stealth -block-ads\n", os.Args[0])
	}

	flag.Parse()

	if *url == "" {
		fmt.Fprintf(os.Stderr, "Error: URL is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Fetching: %s\n", *url)
	}

	client, err := webfetch.NewClient(&webfetch.Options{Stealth: *stealth})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fetchOpts := &webfetch.FetchOptions{
		BlockAds:    *blockAds,
		BlockImages: *blockImages,
		Selector:    *selector,
	}
	if *waitTime > 0 {
		fetchOpts.WaitTime = time.Duration(*waitTime) * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*timeout)*time.Second)
	defer cancel()

	result, err := client.FetchHTML(ctx, *url, fetchOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to fetch: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Fetched in %.2f seconds\n", result.Duration.Seconds())
		fmt.Fprintf(os.Stderr, "Final URL: %s\n", result.URL)
	}

	output := result.Content
	if *asJSON {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to format JSON: %v\n", err)
			os.Exit(1)
		}
		output = string(b)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(output), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to write output file: %v\n", err)
			os.Exit(1)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "Output written to: %s\n", *outputFile)
		}
	} else {
		fmt.Println(output)
	}
}
