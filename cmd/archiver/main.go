package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atm-rdc/transit-engine/internal/config"
	"github.com/atm-rdc/transit-engine/internal/nats"
	"github.com/atm-rdc/transit-engine/internal/storage"
)

func main() {
	if err := runArchiver(); err != nil {
		log.Printf("Archiver failed: %v", err)
		os.Exit(1)
	}
}

// runArchiver contains the main application logic
func runArchiver() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()

	store := storage.New(cfg.OutputDir)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}

	if err := client.SubscribeReports(func(data []byte) {
		if err := store.Write(data); err != nil {
			log.Printf("Failed to archive payload: %v", err)
		}
	}); err != nil {
		if stopErr := store.Stop(); stopErr != nil {
			log.Printf("Failed to stop storage: %v", stopErr)
		}
		return fmt.Errorf("failed to subscribe to position reports: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	client.Close()
	if err := store.Stop(); err != nil {
		return fmt.Errorf("failed to stop storage: %w", err)
	}
	time.Sleep(time.Second) // Give time for goroutines to clean up
	return nil
}
