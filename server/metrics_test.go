package server

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMetricsCollector records every call. The accept loop and session
// goroutines call it concurrently.
type mockMetricsCollector struct {
	mu          sync.Mutex
	commands    map[string][]bool
	transfers   map[string]int64
	connections []string
	auths       []string
}

func (m *mockMetricsCollector) RecordCommand(cmd string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commands == nil {
		m.commands = make(map[string][]bool)
	}
	m.commands[cmd] = append(m.commands[cmd], success)
}

func (m *mockMetricsCollector) RecordTransfer(operation string, bytes int64, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transfers == nil {
		m.transfers = make(map[string]int64)
	}
	m.transfers[operation] += bytes
}

func (m *mockMetricsCollector) RecordConnection(accepted bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !accepted {
		reason = "rejected:" + reason
	}
	m.connections = append(m.connections, reason)
}

func (m *mockMetricsCollector) RecordAuthentication(success bool, user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := "fail"
	if success {
		result = "ok"
	}
	m.auths = append(m.auths, user+":"+result)
}

func (m *mockMetricsCollector) rejections(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.connections {
		if c == "rejected:"+reason {
			n++
		}
	}
	return n
}

func (m *mockMetricsCollector) commandResults(cmd string) []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.commands[cmd]...)
}

func (m *mockMetricsCollector) transferred(op string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfers[op]
}

func (m *mockMetricsCollector) authResults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.auths...)
}

func TestMetricsRecorded(t *testing.T) {
	t.Parallel()
	mc := &mockMetricsCollector{}
	env := newTestEnv(t, WithMetricsCollector(mc))

	bad := env.dial(t)
	_, err := bad.Expect(331, "USER alice")
	require.NoError(t, err)
	_, err = bad.Expect(530, "PASS nope")
	require.NoError(t, err)
	_, err = bad.Expect(502, "XYZZY")
	require.NoError(t, err)

	c := env.client(t, "alice", "secret")
	require.NoError(t, c.Stor("m.txt", strings.NewReader("metrics")))
	require.Error(t, c.ChangeDir("missing"))
	require.NoError(t, c.NoOp())

	assert.Equal(t, []string{"alice:fail", "alice:ok"}, mc.authResults())
	assert.Equal(t, int64(7), mc.transferred("STOR"))

	// Commands are recorded after their reply is sent.
	waitFor(t, func() bool { return len(mc.commandResults("NOOP")) == 1 }, "NOOP metric")
	assert.Equal(t, []bool{false}, mc.commandResults("CWD"))
	assert.Equal(t, []bool{true}, mc.commandResults("STOR"))
	assert.Equal(t, []bool{true}, mc.commandResults("NOOP"))
	waitFor(t, func() bool { return len(mc.commandResults("UNKNOWN")) == 1 }, "unknown verb metric")
	assert.Empty(t, mc.commandResults("XYZZY"))
	assert.Equal(t, 0, mc.rejections("data_ports_exhausted"))
}

func TestMetricsCollectorOptional(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.Nil(t, env.server.metrics)

	// Every recording path runs without a collector.
	c := env.client(t, "bob", "hunter2")
	require.NoError(t, c.Stor("x.txt", strings.NewReader("x")))
	require.NoError(t, c.NoOp())
}
