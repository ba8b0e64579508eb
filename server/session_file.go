package server

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gonzalop/ftpd"
)

func (s *session) handlePWD(_ string) {
	s.reply(ftpd.StatusPathCreated, fmt.Sprintf("%q is the current directory.", s.sb.cwd))
}

func (s *session) handleCWD(arg string) {
	if err := s.sb.chdir(arg); err != nil {
		s.replyError(err)
		return
	}
	s.reply(ftpd.StatusFileActionOK, "Directory successfully changed.")
}

// handleCDUP moves to the parent directory; at the user root it stays put.
func (s *session) handleCDUP(_ string) {
	s.sb.cdup()
	s.reply(ftpd.StatusFileActionOK, "Directory successfully changed.")
}

func (s *session) handleMKD(arg string) {
	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "MKD requires a directory name.")
		return
	}
	vpath, err := s.sb.mkdir(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	// Security audit: directory created
	s.server.logger.Info("directory_created",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"path", vpath,
	)
	s.reply(ftpd.StatusPathCreated, fmt.Sprintf("%q created.", vpath))
}

func (s *session) handleRMD(arg string) {
	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "RMD requires a directory name.")
		return
	}
	vpath, err := s.sb.removeDir(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	// Security audit: directory removed
	s.server.logger.Info("directory_removed",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"path", vpath,
	)
	s.reply(ftpd.StatusFileActionOK, "Directory removed.")
}

func (s *session) handleDELE(arg string) {
	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "DELE requires a file name.")
		return
	}
	vpath, err := s.sb.remove(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	// Security audit: file deleted
	s.server.logger.Info("file_deleted",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"path", vpath,
	)
	s.reply(ftpd.StatusFileActionOK, "File deleted.")
}

// handleRNFR records the rename source. Any earlier pending source is
// replaced.
func (s *session) handleRNFR(arg string) {
	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "RNFR requires a file name.")
		return
	}
	vpath, err := s.sb.resolve(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	if _, err := s.sb.fs.Stat(vpath); err != nil {
		s.replyError(err)
		return
	}

	s.renameFrom = vpath
	s.reply(ftpd.StatusFileActionPending, "Ready for RNTO.")
}

// handleRNTO completes a rename. The pending source is cleared whether the
// rename succeeds or not.
func (s *session) handleRNTO(arg string) {
	if s.renameFrom == "" {
		s.reply(ftpd.StatusBadSequence, "Bad sequence of commands. Send RNFR first.")
		return
	}
	from := s.renameFrom
	s.renameFrom = ""

	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "RNTO requires a file name.")
		return
	}
	to, err := s.sb.rename(from, arg)
	if err != nil {
		s.replyError(err)
		return
	}

	s.server.logger.Info("file_renamed",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"from", from,
		"to", to,
	)
	s.reply(ftpd.StatusFileActionOK, "Requested file action successful, file renamed.")
}

func (s *session) handleLIST(arg string) {
	s.sendListing("LIST", arg, "Here comes the directory listing.", "Directory send OK.",
		func(w io.Writer, fi os.FileInfo) error {
			_, err := io.WriteString(w, formatListLine(fi, s.user.Name, s.user.Role, time.Now())+"\r\n")
			return err
		})
}

func (s *session) handleNLST(arg string) {
	s.sendListing("NLST", arg, "Here comes the file list.", "Transfer complete.",
		func(w io.Writer, fi os.FileInfo) error {
			_, err := io.WriteString(w, fi.Name()+"\r\n")
			return err
		})
}

func (s *session) sendListing(op, arg, preliminary, done string, line func(io.Writer, os.FileInfo) error) {
	target := listTarget(arg)
	entries, err := s.sb.list(target)
	if err != nil {
		s.replyError(err)
		return
	}

	s.transfer(op, target, preliminary, done, func(data io.ReadWriter) (int64, error) {
		cw := &countingWriter{w: data}
		for _, fi := range entries {
			if err := line(cw, fi); err != nil {
				return cw.n, err
			}
		}
		return cw.n, nil
	})
}

// listTarget strips ls-style flags ("-a", "-la") that many clients send
// with LIST and NLST.
func listTarget(arg string) string {
	fields := strings.Fields(arg)
	for len(fields) > 0 && strings.HasPrefix(fields[0], "-") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// formatListLine renders one entry the way "ls -l" does:
//
//	-rw-r--r-- 1 alice admin 1024 Jan 02 15:04 notes.txt
//
// Entries older than six months show the year instead of the time.
func formatListLine(fi os.FileInfo, owner, group string, now time.Time) string {
	if owner == "" {
		owner = "ftp"
	}
	if group == "" {
		group = "ftp"
	}

	mt := fi.ModTime()
	stamp := mt.Format("Jan 02 15:04")
	if now.Sub(mt) > 180*24*time.Hour || mt.After(now.Add(time.Hour)) {
		stamp = mt.Format("Jan 02  2006")
	}

	return fmt.Sprintf("%s 1 %s %s %d %s %s", fi.Mode().String(), owner, group, fi.Size(), stamp, fi.Name())
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
