// Package realtime tracks live WebSocket connections per authenticated user
// and fans notification payloads out to them. Connections are process-local
// and ephemeral; clients reconcile after a reconnect by re-fetching state.
package realtime

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/metrics"
)

const shardCount = 16

// Registry is a sharded connection map. Sharding keeps lock contention low
// when many users connect and disconnect concurrently.
type Registry struct {
	shards  [shardCount]*shard
	logger  *logger.Logger
	metrics *metrics.Metrics
}

type shard struct {
	mu    sync.RWMutex
	conns map[uuid.UUID][]*Client
}

func NewRegistry(log *logger.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{logger: log, metrics: m}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[uuid.UUID][]*Client)}
	}
	return r
}

func (r *Registry) shardFor(userID uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(userID[:])
	return r.shards[h.Sum32()%shardCount]
}

// Register adds a connection. A user may hold several at once (devices,
// tabs).
func (r *Registry) Register(c *Client) {
	s := r.shardFor(c.userID)
	s.mu.Lock()
	s.conns[c.userID] = append(s.conns[c.userID], c)
	s.mu.Unlock()

	if r.metrics != nil {
		r.metrics.LiveConnections.Inc()
	}
	r.logger.Debug("connection registered", "user_id", c.userID.String())
}

// Unregister removes a connection. Dropping a connection has no effect on
// pending notifications.
func (r *Registry) Unregister(c *Client) {
	s := r.shardFor(c.userID)
	s.mu.Lock()
	clients := s.conns[c.userID]
	for i, existing := range clients {
		if existing == c {
			clients = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(clients) == 0 {
		delete(s.conns, c.userID)
	} else {
		s.conns[c.userID] = clients
	}
	s.mu.Unlock()

	if r.metrics != nil {
		r.metrics.LiveConnections.Dec()
	}
}

// Push queues payload on every live connection for the user and reports how
// many connections accepted it. Sends never block: a connection whose buffer
// is full is dropped as a slow consumer and must reconnect.
func (r *Registry) Push(userID uuid.UUID, payload []byte) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	clients := make([]*Client, len(s.conns[userID]))
	copy(clients, s.conns[userID])
	s.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if c.enqueue(payload) {
			delivered++
		} else {
			r.logger.Warn("dropping slow consumer", "user_id", userID.String())
			c.Close()
		}
	}
	return delivered
}

// Connections reports the live connection count for a user.
func (r *Registry) Connections(userID uuid.UUID) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID])
}
