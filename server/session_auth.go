package server

import (
	"github.com/gonzalop/ftpd"
	"github.com/gonzalop/ftpd/userdir"
)

func (s *session) handleUSER(name string) {
	if s.loggedIn {
		s.reply(ftpd.StatusBadSequence, "Already logged in.")
		return
	}
	if name == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "USER requires a user name.")
		return
	}

	u, ok := s.server.users.Lookup(name)
	if !ok {
		s.pendingUser = ""
		s.loginFailed(name, ErrUnknownUser, "Unknown user.")
		return
	}

	if s.server.identityOnly {
		s.login(u)
		return
	}

	s.pendingUser = name
	s.reply(ftpd.StatusUserOK, "User name okay, need password.")
}

func (s *session) handlePASS(pass string) {
	if s.loggedIn {
		s.reply(ftpd.StatusBadSequence, "Already logged in.")
		return
	}
	if s.pendingUser == "" {
		s.reply(ftpd.StatusBadSequence, "Login with USER first.")
		return
	}

	name := s.pendingUser
	s.pendingUser = ""

	u, ok := s.server.users.Lookup(name)
	if !ok || !u.CheckPassword(pass) {
		s.loginFailed(name, ErrBadPassword, "Login incorrect.")
		return
	}
	s.login(u)
}

// login opens the user's sandbox and marks the session authenticated.
func (s *session) login(u userdir.User) {
	var (
		sb  *sandbox
		err error
	)
	if s.server.fsFactory != nil {
		sb = newSandbox(s.server.fsFactory(u))
	} else {
		sb, err = newOSSandbox(u.Root)
	}
	if err != nil {
		s.server.logger.Error("home_unavailable",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", u.Name,
			"error", err,
		)
		s.reply(ftpd.StatusNotLoggedIn, "Home directory unavailable.")
		return
	}

	s.user = u
	s.sb = sb
	s.loggedIn = true
	s.loginAttemptsLeft = s.server.maxLoginAttempts

	s.server.logger.Info("authentication_success",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", u.Name,
		"role", u.Role,
	)
	s.recordAuth(true, u.Name)
	s.reply(ftpd.StatusLoggedIn, "User logged in, proceed.")
}

// loginFailed counts a failed attempt. When no attempts remain the session
// ends after the 530 reply.
func (s *session) loginFailed(name string, cause error, msg string) {
	s.loginAttemptsLeft--

	s.server.logger.Warn("authentication_failed",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", name,
		"reason", cause.Error(),
		"attempts_remaining", s.loginAttemptsLeft,
	)
	s.recordAuth(false, name)

	if s.loginAttemptsLeft <= 0 {
		s.reply(ftpd.StatusNotLoggedIn, msg+" Too many failed login attempts.")
		s.quit = true
		return
	}
	s.reply(ftpd.StatusNotLoggedIn, msg)
}

func (s *session) handleQUIT(_ string) {
	s.reply(ftpd.StatusClosing, "Goodbye.")
	s.quit = true
}
