package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atm-rdc/transit-engine/internal/types"
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client caches live engine state: the open overflight session, the latest
// track state and the open parking session per aircraft.
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// getData retrieves data from Redis and unmarshals it into the target
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// StoreSession caches an open overflight session.
func (c *Client) StoreSession(ctx context.Context, session *types.OverflightSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session data: %w", err)
	}

	key := fmt.Sprintf("overflight:%s", session.AircraftID)
	return c.client.Set(ctx, key, data, 24*time.Hour).Err()
}

// GetSession retrieves the cached open overflight session for an aircraft,
// or nil when none is cached.
func (c *Client) GetSession(ctx context.Context, aircraftID string) (*types.OverflightSession, error) {
	key := fmt.Sprintf("overflight:%s", aircraftID)
	var session types.OverflightSession
	found, err := c.getData(ctx, key, &session, "session")
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// DeleteSession removes the cached overflight session for an aircraft.
func (c *Client) DeleteSession(ctx context.Context, aircraftID string) error {
	key := fmt.Sprintf("overflight:%s", aircraftID)
	return c.client.Del(ctx, key).Err()
}

// StoreTrackState caches the latest track state for an aircraft.
func (c *Client) StoreTrackState(ctx context.Context, state *types.TrackState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal track state: %w", err)
	}

	key := fmt.Sprintf("track:%s", state.AircraftID)
	return c.client.Set(ctx, key, data, 1*time.Hour).Err()
}

// GetTrackState retrieves the cached track state for an aircraft, or nil
// when none is cached.
func (c *Client) GetTrackState(ctx context.Context, aircraftID string) (*types.TrackState, error) {
	key := fmt.Sprintf("track:%s", aircraftID)
	var state types.TrackState
	found, err := c.getData(ctx, key, &state, "track state")
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

// DeleteTrackState removes the cached track state for an aircraft.
func (c *Client) DeleteTrackState(ctx context.Context, aircraftID string) error {
	key := fmt.Sprintf("track:%s", aircraftID)
	return c.client.Del(ctx, key).Err()
}

// StoreParking caches an open parking session.
func (c *Client) StoreParking(ctx context.Context, parking *types.ParkingSession) error {
	data, err := json.Marshal(parking)
	if err != nil {
		return fmt.Errorf("failed to marshal parking data: %w", err)
	}

	key := fmt.Sprintf("parking:%s", parking.AircraftID)
	return c.client.Set(ctx, key, data, 7*24*time.Hour).Err()
}

// GetParking retrieves the cached open parking session for an aircraft, or
// nil when none is cached.
func (c *Client) GetParking(ctx context.Context, aircraftID string) (*types.ParkingSession, error) {
	key := fmt.Sprintf("parking:%s", aircraftID)
	var parking types.ParkingSession
	found, err := c.getData(ctx, key, &parking, "parking")
	if err != nil || !found {
		return nil, err
	}
	return &parking, nil
}

// DeleteParking removes the cached parking session for an aircraft.
func (c *Client) DeleteParking(ctx context.Context, aircraftID string) error {
	key := fmt.Sprintf("parking:%s", aircraftID)
	return c.client.Del(ctx, key).Err()
}
