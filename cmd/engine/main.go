package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atm-rdc/transit-engine/internal/billing"
	"github.com/atm-rdc/transit-engine/internal/boundary"
	"github.com/atm-rdc/transit-engine/internal/config"
	"github.com/atm-rdc/transit-engine/internal/db"
	"github.com/atm-rdc/transit-engine/internal/feed"
	"github.com/atm-rdc/transit-engine/internal/metrics"
	"github.com/atm-rdc/transit-engine/internal/nats"
	"github.com/atm-rdc/transit-engine/internal/parser"
	"github.com/atm-rdc/transit-engine/internal/query"
	"github.com/atm-rdc/transit-engine/internal/redis"
	"github.com/atm-rdc/transit-engine/internal/stats"
	"github.com/atm-rdc/transit-engine/internal/tracker"
)

const (
	statsInterval   = time.Minute
	persistInterval = time.Minute
	bufferCapacity  = 65536
)

func main() {
	if err := runEngine(); err != nil {
		log.Printf("Engine failed: %v", err)
		os.Exit(1)
	}
}

// runEngine contains the main application logic
func runEngine() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	natsClient, dbClient, redisClient, err := createClients(cfg)
	if err != nil {
		return err
	}
	defer natsClient.Close()
	defer dbClient.Close()
	defer redisClient.Close()

	boundaries, err := loadBoundary(dbClient)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := stats.New()
	st.SetStore(dbClient)
	go st.StartPersistence(ctx, persistInterval)

	tariff := billing.ParkingTariff{
		FreeHours:   cfg.ParkingFreeHours,
		RatePerHour: cfg.ParkingRatePerHour,
	}
	rate := billing.DistanceRate(cfg.OverflightRatePerKm)
	tr := tracker.New(tracker.Config{
		PollInterval:         cfg.PollInterval,
		FetchTimeout:         cfg.FetchTimeout,
		IdleTimeout:          cfg.IdleTimeout,
		TrajectoryStride:     cfg.TrajectoryStride,
		TrajectoryMaxSamples: cfg.TrajectoryMaxSamples,
		Rate:                 rate,
		Tariff:               tariff,
	}, boundaries, dbClient, redisClient, natsClient, st)

	if err := tr.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover state: %w", err)
	}

	// Reports arrive pushed over NATS and drain into the buffer that the
	// tracker polls on its own cadence.
	buffer := feed.NewBuffer(bufferCapacity)
	err = natsClient.SubscribeReports(func(data []byte) {
		reports, rejected, err := parser.ParseBatch(data)
		if err != nil {
			st.IncrementRejectedReports()
			metrics.ReportsRejectedTotal.Inc()
			return
		}
		if rejected > 0 {
			st.AddRejectedReports(rejected)
			metrics.ReportsRejectedTotal.Add(float64(rejected))
		}
		if dropped := buffer.PushAll(reports); dropped > 0 {
			log.Printf("Warning: buffer overflow, dropped %d oldest reports", dropped)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to position reports: %w", err)
	}

	go func() {
		if err := tr.Run(ctx, buffer); err != nil && err != context.Canceled {
			log.Printf("Tracker stopped: %v", err)
		}
	}()

	go logStats(ctx, st)

	srv := startHTTP(cfg.HTTPAddr, tr, dbClient, tariff, rate, st)

	waitForShutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown failed: %v", err)
	}
	cancel()
	time.Sleep(time.Second) // Give time for goroutines to clean up
	return nil
}

// createClients builds the NATS, database and Redis clients.
func createClients(cfg *config.Config) (*nats.Client, *db.Client, *redis.Client, error) {
	natsClient, err := nats.New(cfg.NATSURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		natsClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create database client: %w", err)
	}

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		natsClient.Close()
		dbClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return natsClient, dbClient, redisClient, nil
}

// loadBoundary installs the persisted boundary, falling back to the built-in
// default on first start.
func loadBoundary(dbClient *db.Client) (*boundary.Store, error) {
	store := boundary.New()

	poly, err := dbClient.LoadBoundary()
	if err != nil {
		return nil, fmt.Errorf("failed to load boundary: %w", err)
	}
	if poly == nil {
		def := boundary.Default()
		if err := dbClient.SaveBoundary("rdc", def); err != nil {
			log.Printf("Warning: failed to persist default boundary: %v", err)
		}
		poly = &def
		log.Println("No stored boundary, using built-in default")
	}
	if err := store.SetActive(*poly); err != nil {
		return nil, fmt.Errorf("invalid boundary geometry: %w", err)
	}
	return store, nil
}

func startHTTP(addr string, tr *tracker.Tracker, dbClient *db.Client, tariff billing.ParkingTariff, rate billing.OverflightRateFunc, st *stats.Stats) *http.Server {
	root := http.NewServeMux()
	api := query.BuildRoutes(tr, dbClient, tariff, rate, st)
	root.Handle("/radar/api/", http.StripPrefix("/radar/api", api))
	root.Handle("/metrics", metrics.Handler())
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server failed: %v", err)
		}
	}()
	return srv
}

func logStats(ctx context.Context, st *stats.Stats) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Engine statistics:\n%s", st.String())
		}
	}
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutting down...")
}
