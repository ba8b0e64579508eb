package ftpd

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResponse(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(strings.NewReader(
		"220 FTP server ready (127.0.0.1)\r\n" +
			"211-Features:\r\n PASV\r\n SIZE\r\n211 End\r\n" +
			"214-Help\r\n214-more\r\n214 Done\r\n",
	))

	resp, err := ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 220, resp.Code)
	assert.Equal(t, "FTP server ready (127.0.0.1)", resp.Message)
	assert.True(t, resp.Is2xx())

	resp, err = ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 211, resp.Code)
	assert.Equal(t, []string{"211-Features:", " PASV", " SIZE", "211 End"}, resp.Lines)
	assert.Equal(t, "Features:\nPASV\nSIZE\nEnd", resp.Message)

	resp, err = ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, "Help\nmore\nDone", resp.Message)

	_, err = ReadResponse(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadResponseHelpListing(t *testing.T) {
	t.Parallel()

	r := bufio.NewReader(strings.NewReader(
		"220 ready\r\n" +
			"214-The following commands are recognized.\r\n" +
			" USER PASS QUIT\r\n" +
			"214 Help OK.\r\n"))

	resp, err := ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 220, resp.Code)
	assert.Equal(t, "ready", resp.Message)

	resp, err = ReadResponse(r)
	require.NoError(t, err)
	assert.Equal(t, 214, resp.Code)
	assert.Len(t, resp.Lines, 3)
	assert.Contains(t, resp.Message, "USER PASS QUIT")
}

func TestReadResponseMalformed(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"22\r\n", "abc hello\r\n", "220xhello\r\n", "211-open\r\n"} {
		_, err := ReadResponse(bufio.NewReader(strings.NewReader(in)))
		assert.Error(t, err, "%q", in)
	}
}

func TestProtocolError(t *testing.T) {
	t.Parallel()

	e := &ProtocolError{Command: "RETR x", Response: "425 Can't open data connection.", Code: 425}
	assert.True(t, e.IsTemporary())
	assert.False(t, e.IsPermanent())
	assert.Contains(t, e.Error(), "RETR x")

	assert.Equal(t, "Not logged in.", StatusText(StatusNotLoggedIn))
	assert.Empty(t, StatusText(999))
}
