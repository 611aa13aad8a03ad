package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"shrike/internal/pool"
)

const (
	InstanceHeartbeatKeyPrefix = "shrike:instance:"
	DefaultHeartbeatInterval   = 15 * time.Second
	DefaultHeartbeatTTL        = 30 * time.Second
)

var instanceID = generateInstanceID()

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

// StartInstanceHeartbeat periodically publishes this instance's pool stats
// to Redis under a TTL'd key, so a fleet of relays can be observed in one
// place. The key expires shortly after the process stops refreshing it.
func StartInstanceHeartbeat(ctx context.Context, client *redis.Client, statsFn func() pool.Stats, interval, ttl time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	heartbeatKey := InstanceHeartbeatKeyPrefix + instanceID

	sendHeartbeat := func() {
		payload, err := json.Marshal(statsFn())
		if err != nil {
			log.Error("Failed to serialize heartbeat payload", "error", err)
			return
		}
		if err := client.SetEx(ctx, heartbeatKey, string(payload), ttl).Err(); err != nil {
			log.Error("Failed to update instance heartbeat", "key", heartbeatKey, "error", err)
		}
	}

	sendHeartbeat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendHeartbeat()
		}
	}
}

// LaunchInstanceHeartbeat starts the heartbeat in the background and
// returns its cancel func.
func LaunchInstanceHeartbeat(parent context.Context, client *redis.Client, statsFn func() pool.Stats) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartInstanceHeartbeat(ctx, client, statsFn, DefaultHeartbeatInterval, DefaultHeartbeatTTL)
	return cancel
}

// CountActiveInstances reports how many relay instances currently hold a
// live heartbeat key.
func CountActiveInstances(ctx context.Context, client *redis.Client) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	keys, err := client.Keys(ctx, InstanceHeartbeatKeyPrefix+"*").Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}
