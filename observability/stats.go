package observability

import "sync/atomic"

// RelayStats aggregates live delivery counters for the heartbeat worker and
// the health endpoint. Counters are atomic; Snapshot is a sampled view, not
// a transaction.
type RelayStats struct {
	Connects        uint64
	Disconnects     uint64
	Delivered       uint64
	Dropped         uint64
	PersistFailures uint64
}

func NewRelayStats() *RelayStats {
	return &RelayStats{}
}

func (s *RelayStats) IncrConnects() {
	atomic.AddUint64(&s.Connects, 1)
}

func (s *RelayStats) IncrDisconnects() {
	atomic.AddUint64(&s.Disconnects, 1)
}

func (s *RelayStats) IncrDelivered() {
	atomic.AddUint64(&s.Delivered, 1)
}

// IncrDropped counts deliveries lost to a full queue or a closed session.
func (s *RelayStats) IncrDropped() {
	atomic.AddUint64(&s.Dropped, 1)
}

func (s *RelayStats) IncrPersistFailures() {
	atomic.AddUint64(&s.PersistFailures, 1)
}

func (s *RelayStats) Snapshot() map[string]any {
	return map[string]any{
		"connects":         atomic.LoadUint64(&s.Connects),
		"disconnects":      atomic.LoadUint64(&s.Disconnects),
		"delivered":        atomic.LoadUint64(&s.Delivered),
		"dropped":          atomic.LoadUint64(&s.Dropped),
		"persist_failures": atomic.LoadUint64(&s.PersistFailures),
	}
}
