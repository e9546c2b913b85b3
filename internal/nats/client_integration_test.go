package nats

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/atm-rdc/transit-engine/internal/testutils"
	"github.com/atm-rdc/transit-engine/internal/types"
)

func startNATS(t *testing.T) string {
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}
	return url
}

func TestClient_Integration_PublishSubscribeReports(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, err := New(startNATS(t))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	if err := client.SubscribeReports(func(data []byte) {
		select {
		case received <- data:
		default:
		}
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	batch := []types.PositionReport{
		testutils.MockReport("9Q-CLM", time.Now().UTC(), -4.3, 15.3),
	}
	if err := client.PublishReports(batch); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case data := <-received:
		if len(data) == 0 {
			t.Error("received empty payload")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for published batch")
	}
}

func TestClient_Integration_SessionClosedRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, err := New(startNATS(t))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	received := make(chan *SessionClosedEvent, 1)
	if err := client.SubscribeSessionClosed(func(event *SessionClosedEvent) {
		select {
		case received <- event:
		default:
		}
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	amount := 125.5
	event := &SessionClosedEvent{
		Session: &types.OverflightSession{
			SessionID:  "OVF-20240301-AB12CD34",
			AircraftID: "9Q-CLM",
			Status:     types.SessionClosed,
		},
		Amount:   &amount,
		ClosedAt: time.Now().UTC(),
	}
	if err := client.PublishSessionClosed(event); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Session.SessionID != event.Session.SessionID {
			t.Errorf("SessionID = %v, want %v", got.Session.SessionID, event.Session.SessionID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for session event")
	}
}
