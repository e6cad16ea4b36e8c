package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dnicheck/internal/client"
	"dnicheck/internal/config"
	"dnicheck/internal/models"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables (used as fallback if flags not provided):\n")
		fmt.Fprintf(os.Stderr, "  DNICHECK_SERVER            - Server base URL\n")
		fmt.Fprintf(os.Stderr, "  DNICHECK_INTERVAL_SECONDS  - Progress polling interval\n")
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s --file lista.xlsx --out resultado.xlsx\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --server http://10.0.0.5:5000 --dni 12345678\n", os.Args[0])
	}

	configPath := flag.String("config", "", "Path to config file (YAML)")
	server := flag.String("server", "", "Server base URL")
	file := flag.String("file", "", "Spreadsheet to verify (.xls or .xlsx)")
	out := flag.String("out", "resultado.xlsx", "Where to save the results")
	interval := flag.Duration("interval", 0, "Progress polling interval")
	watch := flag.Bool("watch", false, "Follow progress over WebSocket instead of polling")
	dni := flag.String("dni", "", "Verify a single DNI and exit")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *server != "" {
		cfg.Server = *server
	}
	pollEvery := cfg.Interval()
	if *interval > 0 {
		pollEvery = *interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(cfg.Server)

	switch {
	case *dni != "":
		if err := lookup(ctx, c, *dni); err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
	case *file != "":
		if err := run(ctx, c, *file, *out, pollEvery, *watch); err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func lookup(ctx context.Context, c *client.Client, dni string) error {
	resp, err := c.VerifyDNI(ctx, dni)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func run(ctx context.Context, c *client.Client, file, out string, interval time.Duration, watch bool) error {
	taskID, err := c.UploadFile(ctx, file)
	if err != nil {
		return err
	}
	log.Printf("Task %s created", taskID)

	report := func(p *client.Progress) {
		if p.Status == models.JobStatusProcessing {
			log.Printf("%d/%d (%d%%)", p.Processed, p.Total, p.Progress)
		}
	}

	var final *client.Progress
	if watch {
		final, err = c.Watch(ctx, taskID, report)
	} else {
		final, err = c.Wait(ctx, taskID, interval, report)
	}
	if err != nil {
		return err
	}

	if final.Status == models.JobStatusError {
		return fmt.Errorf("task %s failed: %s", taskID, final.Message)
	}

	if err := c.DownloadFile(ctx, taskID, out); err != nil {
		return err
	}

	var failed int
	for _, r := range final.Resultados {
		if r.Resultado == models.OutcomeError {
			failed++
		}
	}
	log.Printf("%d rows verified, %d with ERROR, results saved to %s", final.Total, failed, out)
	return nil
}
