package core

import (
	"encoding/json"
	"fmt"

	"github.com/searchktools/archive-server/core/pools"
)

// ServerStats is a snapshot of server counters.
type ServerStats struct {
	ConnectionsAccepted uint64                `json:"connections_accepted"`
	ConnectionsActive   int                   `json:"connections_active"`
	RequestsServed      uint64                `json:"requests_served"`
	ParseErrors         uint64                `json:"parse_errors"`
	Workers             pools.WorkerPoolStats `json:"workers"`
	Buffers             pools.BufferStats     `json:"buffers"`
}

// Stats returns current server statistics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ConnectionsAccepted: s.accepted.Load(),
		ConnectionsActive:   s.activeConns(),
		RequestsServed:      s.requests.Load(),
		ParseErrors:         s.parseErrors.Load(),
		Workers:             s.pool.Stats(),
		Buffers:             pools.GetBufferStats(),
	}
}

// StatsJSON returns server statistics as JSON string
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}

// StatsText returns server statistics as human-readable text
func (s *Server) StatsText() string {
	st := s.Stats()
	return fmt.Sprintf(`Server Statistics
=================

Connections:
  Accepted: %d
  Active:   %d

Requests:
  Served:       %d
  Parse errors: %d

Workers (%d):
  Submitted: %d
  Completed: %d
  Pending:   %d
  Active:    %d
  Panics:    %d

Response buffers:
  Gets:    %d
  Puts:    %d
  Dropped: %d
`,
		st.ConnectionsAccepted, st.ConnectionsActive,
		st.RequestsServed, st.ParseErrors,
		st.Workers.NumWorkers, st.Workers.TasksSubmitted, st.Workers.TasksCompleted,
		st.Workers.TasksPending, st.Workers.TasksActive, st.Workers.Panics,
		st.Buffers.Gets, st.Buffers.Puts, st.Buffers.Dropped,
	)
}
