package server

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpd/ftptest"
	"github.com/gonzalop/ftpd/userdir"
)

// Every test server gets its own data port range so parallel tests never
// compete for the same ports. The ranges sit below the Linux ephemeral
// range.
var portCursor atomic.Int32

func testPorts(n int) PortRange {
	end := 21000 + int(portCursor.Add(int32(n))) - 1
	return PortRange{Start: end - n + 1, End: end}
}

// safeBuffer is a bytes.Buffer safe for concurrent writes from the server
// and reads from the test.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

type testEnv struct {
	server *Server
	addr   string
	base   string
	users  *userdir.Directory
	logs   *safeBuffer
}

// newTestEnv starts a server on 127.0.0.1 with two users, alice (admin) and
// bob (user), whose homes live under a temporary directory. opts are applied
// after the defaults.
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	base := t.TempDir()
	users, err := userdir.New(base,
		userdir.User{Name: "alice", Password: "secret", Role: "admin"},
		userdir.User{Name: "bob", Password: "hunter2", Role: "user"},
	)
	require.NoError(t, err)
	require.NoError(t, users.EnsureHomes())

	logs := &safeBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)

	all := append([]Option{
		WithUsers(users),
		WithLogger(logger),
		WithDataPorts(testPorts(8)),
		WithDataTimeout(2 * time.Second),
	}, opts...)
	s, err := NewServer(ln.Addr().String(), all...)
	require.NoError(t, err)

	go func() {
		_ = s.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	return &testEnv{
		server: s,
		addr:   ln.Addr().String(),
		base:   base,
		users:  users,
		logs:   logs,
	}
}

// home returns the host path of a user's root.
func (e *testEnv) home(name string, elem ...string) string {
	u, ok := e.users.Lookup(name)
	if !ok {
		panic("unknown test user " + name)
	}
	return filepath.Join(append([]string{u.Root}, elem...)...)
}

// dial opens a raw control connection.
func (e *testEnv) dial(t *testing.T) *ftptest.Conn {
	t.Helper()
	c, err := ftptest.Dial(e.addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// login opens a raw control connection logged in as alice.
func (e *testEnv) login(t *testing.T) *ftptest.Conn {
	t.Helper()
	c := e.dial(t)
	require.Equal(t, 220, c.Greeting.Code)
	require.NoError(t, c.Login("alice", "secret"))
	return c
}

// client opens a jlaffaye/ftp connection logged in as user.
func (e *testEnv) client(t *testing.T, user, pass string) *ftp.ServerConn {
	t.Helper()
	c, err := ftp.Dial(e.addr,
		ftp.DialWithTimeout(5*time.Second),
		ftp.DialWithDisabledEPSV(true),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Quit() })
	require.NoError(t, c.Login(user, pass))
	return c
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func countLines(s, substr string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			n++
		}
	}
	return n
}
