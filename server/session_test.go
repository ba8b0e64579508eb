package server

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGreetingAndLoginGate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	assert.Equal(t, 220, c.Greeting.Code)
	assert.Equal(t, "FTP server ready (127.0.0.1)", c.Greeting.Message)

	// Allowed before login.
	for cmd, code := range map[string]int{
		"SYST": 215,
		"NOOP": 200,
		"noop": 200,
		"FEAT": 211,
		"HELP": 214,
		"?":    214,
	} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Equal(t, code, resp.Code, cmd)
	}

	// Everything else needs a login, including commands that would open a
	// data connection.
	for _, cmd := range []string{"PWD", "CWD /", "LIST", "RETR x", "STOR x", "PASV", "MKD x", "TYPE I"} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Equal(t, 530, resp.Code, cmd)
	}
}

func TestUnknownAndMalformedCommands(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.login(t)

	tests := []struct {
		line string
		code int
	}{
		{"XYZZY", 502},
		{"SITE CHMOD 777 x", 502},
		{"HELLO-WORLD!", 500},
		{"ABCDEFGHIJ", 500},
		{"12345", 500},
		{"", 500},
	}
	for _, tt := range tests {
		resp, err := c.Cmd("%s", tt.line)
		require.NoError(t, err)
		assert.Equal(t, tt.code, resp.Code, "%q", tt.line)
	}

	// The session survives all of the above.
	_, err := c.Expect(200, "NOOP")
	require.NoError(t, err)
}

func TestTwoStepLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	_, err := c.Expect(503, "PASS secret")
	require.NoError(t, err, "PASS before USER")

	_, err = c.Expect(331, "USER alice")
	require.NoError(t, err)
	resp, err := c.Expect(530, "PASS wrong")
	require.NoError(t, err)
	assert.Equal(t, "Login incorrect.", resp.Message)

	_, err = c.Expect(331, "USER alice")
	require.NoError(t, err)
	_, err = c.Expect(230, "PASS secret")
	require.NoError(t, err)

	_, err = c.Expect(503, "USER bob")
	require.NoError(t, err, "already logged in")
	resp, err = c.Expect(257, "PWD")
	require.NoError(t, err)
	assert.Equal(t, `"/" is the current directory.`, resp.Message)

	assert.Contains(t, env.logs.String(), `"msg":"authentication_success"`)
}

func TestTooManyFailedLogins(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	for i := 0; i < 2; i++ {
		resp, err := c.Expect(530, "USER mallory")
		require.NoError(t, err)
		assert.Equal(t, "Unknown user.", resp.Message)
	}
	resp, err := c.Expect(530, "USER mallory")
	require.NoError(t, err)
	assert.Contains(t, resp.Message, "Too many failed login attempts")

	_, err = c.Read()
	assert.Error(t, err, "session is closed after the last attempt")

	assert.Equal(t, 3, countLines(env.logs.String(), `"msg":"authentication_failed"`))
}

func TestFailedPasswordsCountTowardsLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithMaxLoginAttempts(2))
	c := env.dial(t)

	_, err := c.Expect(331, "USER bob")
	require.NoError(t, err)
	_, err = c.Expect(530, "PASS nope")
	require.NoError(t, err)

	_, err = c.Expect(530, "USER nobody")
	require.NoError(t, err)
	_, err = c.Read()
	assert.Error(t, err)
}

func TestIdentityOnlyLogin(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithIdentityOnlyLogin(true))
	c := env.dial(t)

	_, err := c.Expect(230, "USER bob")
	require.NoError(t, err)
	_, err = c.Expect(257, "PWD")
	require.NoError(t, err)

	_, err = c.Expect(503, "USER alice")
	require.NoError(t, err, "already logged in")
}

func TestPassArgumentNotLogged(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	require.NoError(t, c.Login("alice", "secret"))
	_, err := c.Expect(221, "QUIT")
	require.NoError(t, err)

	logs := env.logs.String()
	assert.Contains(t, logs, `"arg":"***"`)
	assert.NotContains(t, logs, "secret")
}

func TestSandboxEscapesRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.home("bob", "private.txt"), []byte("bob only"), 0o644))
	c := env.login(t)

	for _, cmd := range []string{
		"CWD ..",
		"CWD ../bob",
		"CWD /../../etc",
		"RETR ../bob/private.txt",
		"RETR /../../../etc/passwd",
		"STOR ../bob/planted.txt",
		"APPE ../bob/private.txt",
		"DELE ../bob/private.txt",
		"MKD ../evil",
		"RMD ../bob",
		"RNFR ../bob/private.txt",
		"SIZE ../bob/private.txt",
		"LIST ../bob",
		"NLST ../..",
	} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Equal(t, 550, resp.Code, cmd)
	}

	resp, err := c.Expect(257, "PWD")
	require.NoError(t, err)
	assert.Equal(t, `"/" is the current directory.`, resp.Message)

	assert.FileExists(t, env.home("bob", "private.txt"))
	assert.NoFileExists(t, env.home("bob", "planted.txt"))
	assert.NoDirExists(t, filepath.Join(env.base, "evil"))
}

func TestSymlinkEscapesRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.home("bob", "private.txt"), []byte("bob only"), 0o644))
	if err := os.Symlink(env.home("bob"), env.home("alice", "bob")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	c := env.login(t)

	for _, cmd := range []string{"CWD bob", "RETR bob/private.txt", "SIZE bob/private.txt", "DELE bob/private.txt"} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Equal(t, 550, resp.Code, cmd)
	}
	assert.FileExists(t, env.home("bob", "private.txt"))
}

func TestFileCommands(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.home("alice", "a.txt"), []byte("12345"), 0o644))
	c := env.login(t)

	steps := []struct {
		cmd  string
		code int
		msg  string
	}{
		{"MKD docs", 257, `"/docs" created.`},
		{"MKD docs", 550, "File already exists."},
		{"CWD docs", 250, ""},
		{"PWD", 257, `"/docs" is the current directory.`},
		{"CDUP", 250, ""},
		{"CDUP", 250, ""},
		{"PWD", 257, `"/" is the current directory.`},
		{"CWD a.txt", 550, "Not a directory."},
		{"CWD nowhere", 550, "File not found."},
		{"DELE docs", 550, "Is a directory."},
		{"SIZE a.txt", 213, "5"},
		{"SIZE docs", 550, ""},
		{"RNTO b.txt", 503, ""},
		{"RNFR missing.txt", 550, ""},
		{"RNFR a.txt", 350, ""},
		{"RNTO docs/b.txt", 250, ""},
		{"RNTO c.txt", 503, ""},
		{"SIZE docs/b.txt", 213, "5"},
		{"DELE docs/b.txt", 250, ""},
		{"DELE docs/b.txt", 550, "File not found."},
		{"RMD docs", 250, ""},
		{"RMD /", 550, ""},
		{"XMKD nested", 257, `"/nested" created.`},
		{"XCWD nested", 250, ""},
		{"XPWD", 257, `"/nested" is the current directory.`},
		{"XCUP", 250, ""},
		{"XRMD nested", 250, ""},
	}
	for _, st := range steps {
		resp, err := c.Cmd("%s", st.cmd)
		require.NoError(t, err)
		assert.Equal(t, st.code, resp.Code, st.cmd)
		if st.msg != "" {
			assert.Equal(t, st.msg, resp.Message, st.cmd)
		}
	}

	assert.NoFileExists(t, env.home("alice", "a.txt"))
	assert.NoDirExists(t, env.home("alice", "docs"))
}

func TestTrailingWhitespaceInArguments(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.home("alice", "a.txt"), []byte("12345"), 0o644))
	c := env.login(t)

	for _, cmd := range []string{"SIZE a.txt ", "SIZE a.txt\t", "MKD docs  ", "CWD docs ", "CDUP", "RMD docs "} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Less(t, resp.Code, 400, "%q: %s", cmd, resp)
	}
	assert.NoDirExists(t, env.home("alice", "docs "))
	assert.NoDirExists(t, env.home("alice", "docs"))
}

func TestTransferParameters(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.login(t)

	for cmd, code := range map[string]int{
		"TYPE A":       200,
		"TYPE A N":     200,
		"TYPE I":       200,
		"TYPE L 8":     200,
		"TYPE E":       504,
		"MODE S":       200,
		"MODE B":       504,
		"STRU F":       200,
		"STRU R":       504,
		"OPTS UTF8 ON": 200,
		"OPTS MLST":    501,
		"HELP RETR":    214,
		"HELP BOGUS":   501,
		"STAT":         211,
		"STAT /":       504,
	} {
		resp, err := c.Cmd("%s", cmd)
		require.NoError(t, err)
		assert.Equal(t, code, resp.Code, cmd)
	}
}

func TestFeatAndHelpListings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	resp, err := c.Expect(211, "FEAT")
	require.NoError(t, err)
	assert.Equal(t, []string{"211-Features:", " PASV", " SIZE", " UTF8", "211 End"}, resp.Lines)

	resp, err = c.Expect(214, "HELP")
	require.NoError(t, err)
	for _, verb := range []string{"USER", "PASS", "RETR", "STOR", "RNFR", "PASV", "PORT", "QUIT"} {
		assert.Contains(t, resp.Message, verb)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	require.NoError(t, os.Mkdir(env.home("alice", "work"), 0o755))
	require.NoError(t, os.WriteFile(env.home("alice", "work", "plan.txt"), []byte("x"), 0o644))

	alice := env.login(t)
	bob := env.dial(t)
	require.NoError(t, bob.Login("bob", "hunter2"))
	alice2 := env.login(t)

	_, err := alice.Expect(250, "CWD work")
	require.NoError(t, err)

	resp, err := alice2.Expect(257, "PWD")
	require.NoError(t, err)
	assert.Equal(t, `"/" is the current directory.`, resp.Message, "cwd is per session")

	resp, err = bob.Expect(257, "PWD")
	require.NoError(t, err)
	assert.Equal(t, `"/" is the current directory.`, resp.Message)
	_, err = bob.Expect(550, "CWD work")
	require.NoError(t, err, "bob has a separate root")

	_, err = alice.Expect(213, "SIZE plan.txt")
	require.NoError(t, err)
}

func TestIdleTimeout(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, WithMaxIdleTime(200*time.Millisecond))
	c := env.login(t)

	resp, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, 421, resp.Code)

	_, err = c.Read()
	assert.Error(t, err)
}

func TestCommandTooLong(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	resp, err := c.Cmd("NOOP %s", strings.Repeat("A", MaxCommandLength+10))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.Code)

	_, err = c.Expect(200, "NOOP")
	require.NoError(t, err, "the rest of the long line is discarded")
}

func TestTelnetSequencesIgnored(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	c := env.dial(t)

	// IAC IP IAC DM before the command, as sent by clients aborting a transfer.
	resp, err := c.Cmd("\xff\xf4\xff\xf2NOOP")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
}

func TestHandlerPanicRecovered(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	s := &session{
		server: &Server{logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		writer: bufio.NewWriter(&out),
	}
	s.run("BOOM", command{handler: func(*session, string) { panic("boom") }}, "")

	assert.Equal(t, "451 Requested action aborted: local error in processing.\r\n", out.String())
	assert.Equal(t, 451, s.lastCode)
	assert.False(t, s.quit)
}

func TestValidVerb(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"USER", "?", "LOGOUT", "ABCDEFGH"} {
		assert.True(t, validVerb(v), v)
	}
	for _, v := range []string{"", "ABCDEFGHI", "US3R", "user", "RE-TR"} {
		assert.False(t, validVerb(v), v)
	}
}
