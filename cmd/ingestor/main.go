package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atm-rdc/transit-engine/internal/config"
	"github.com/atm-rdc/transit-engine/internal/feed"
	"github.com/atm-rdc/transit-engine/internal/nats"
	"github.com/atm-rdc/transit-engine/internal/parser"
	"github.com/atm-rdc/transit-engine/internal/types"
)

// Publisher interface for testability
type Publisher interface {
	PublishReports(reports []types.PositionReport) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if len(cfg.Sources) == 0 {
		log.Fatal("SOURCES environment variable is required")
	}

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		log.Printf("Failed to create NATS client: %v", err)
		os.Exit(1)
	}
	defer client.Close()

	capture := feed.NewCapture(cfg.Sources)
	capture.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range capture.Lines() {
			publishLine(line, client)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	capture.Stop()
	<-done
	time.Sleep(time.Second) // Give time for goroutines to clean up
}

// publishLine parses one feed line and publishes the report. Malformed
// lines are counted and skipped.
func publishLine(line feed.Line, pub Publisher) bool {
	report, err := parser.ParseReport(line.Data)
	if err != nil {
		log.Printf("Warning: rejected report from %s: %v", line.Source, err)
		return false
	}
	if report.Source == "" {
		report.Source = line.Source
	}
	if err := pub.PublishReports([]types.PositionReport{report}); err != nil {
		log.Printf("Warning: failed to publish report for %s: %v", report.AircraftID, err)
		return false
	}
	return true
}
