package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// The internal/promstats package provides a Prometheus implementation.
//
// Methods are called synchronously from session goroutines and the accept
// loop, so they should not block.
type MetricsCollector interface {
	// RecordCommand records one dispatched command. success is false when
	// the final reply was a 4xx or 5xx code.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a completed transfer. operation is the verb
	// (RETR, STOR, APPE, STOU, LIST, NLST).
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records an accepted or rejected control connection.
	// reason is "accepted" or the rejection cause, e.g. "data_ports_exhausted".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a login attempt for user.
	RecordAuthentication(success bool, user string)
}

func (s *Server) recordConnection(accepted bool, reason string) {
	if s.metrics != nil {
		s.metrics.RecordConnection(accepted, reason)
	}
}

func (s *session) recordCommand(cmd string, success bool, d time.Duration) {
	if s.server.metrics != nil {
		s.server.metrics.RecordCommand(cmd, success, d)
	}
}

func (s *session) recordTransfer(op string, n int64, d time.Duration) {
	if s.server.metrics != nil {
		s.server.metrics.RecordTransfer(op, n, d)
	}
}

func (s *session) recordAuth(success bool, user string) {
	if s.server.metrics != nil {
		s.server.metrics.RecordAuthentication(success, user)
	}
}
