package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aeolun/ircd/pkg/irc"
)

// Session represents one client connection and its protocol state machine.
//
// All fields below the conn handle are confined to the session's event loop:
// command handlers and scheduled closures are the only code touching them, so
// they need no locking. Other sessions read them exclusively through the
// gather mechanism in collector.go.
type Session struct {
	id     uint64
	server *Server
	ctx    *Context // non-owning back-reference for lookups
	loop   *eventLoop

	conn *SafeConn // nil after teardown; doubles as the teardown guard

	// Loop-confined state.
	state      State
	mode       irc.UserMode
	activeCaps []string
	joined     map[irc.ChannelName]bool
}

// serverCapabilities is the fixed capability set advertised via CAP LS.
var serverCapabilities = []string{"multi-prefix"}

func newSession(id uint64, server *Server, conn *SafeConn, loop *eventLoop) *Session {
	return &Session{
		id:         id,
		server:     server,
		ctx:        server.ctx,
		loop:       loop,
		conn:       conn,
		activeCaps: append([]string(nil), serverCapabilities...),
		joined:     make(map[irc.ChannelName]bool),
	}
}

// origin is the server's advertised hostname, used as the prefix of
// server-generated replies.
func (s *Session) origin() string { return s.ctx.Origin }

// target is the reply target: the session's nick, or "*" before one is set.
func (s *Session) target() string {
	if nick, ok := s.state.Nick(); ok {
		return nick.String()
	}
	return "*"
}

// userID returns the session's hostmask identity once registered.
func (s *Session) userID() (irc.UserID, bool) {
	if !s.state.IsRegistered() {
		return irc.UserID{}, false
	}
	nick, _ := s.state.Nick()
	info, _ := s.state.UserInfo()
	host := info.Servername
	if host == "" {
		host = s.origin()
	}
	return irc.UserID{Nick: nick, User: info.Username, Host: host}, true
}

// SendMessage delivers a message to this session's connection. Calls from
// other loops are redispatched onto the owning loop, so connection writes and
// teardown never race session state.
func (s *Session) SendMessage(msg *irc.Message) {
	s.loop.Execute(func() { s.writeNow(msg) })
}

// SendMessages delivers a batch in one write.
func (s *Session) SendMessages(msgs []*irc.Message) {
	s.loop.Execute(func() {
		if s.conn == nil {
			return
		}
		for _, msg := range msgs {
			s.server.metrics.RecordMessageSent(msg.Command)
		}
		if err := s.conn.WriteMessages(msgs); err != nil {
			debugLog.Printf("Session %d: write failed: %v", s.id, err)
			s.teardown()
		}
	})
}

// writeNow writes on the owning loop. Messages to a torn-down session are
// silently dropped.
func (s *Session) writeNow(msg *irc.Message) {
	if s.conn == nil {
		return
	}
	s.server.metrics.RecordMessageSent(msg.Command)
	if err := s.conn.WriteMessage(msg); err != nil {
		debugLog.Printf("Session %d: write failed: %v", s.id, err)
		s.teardown()
	}
}

// sendReply sends a numeric reply addressed to this session.
func (s *Session) sendReply(code irc.ReplyCode, args ...string) {
	params := append([]string{s.target()}, args...)
	s.writeNow(irc.NewMessage(s.origin(), code.String(), params...))
}

// sendError sends an error numeric with the code's default text appended.
func (s *Session) sendError(code irc.ReplyCode, args ...string) {
	s.sendReply(code, append(args, code.ErrorText())...)
}

// sendErrorText sends an error numeric with custom text.
func (s *Session) sendErrorText(code irc.ReplyCode, text string, args ...string) {
	s.sendReply(code, append(args, text)...)
}

// sendMotD emits the message-of-the-day block. Empty MOTDs send nothing.
func (s *Session) sendMotD(lines []string) {
	if len(lines) == 0 {
		return
	}
	origin := s.origin()
	s.sendReply(irc.RplMotDStart, "- "+origin+" Message of the Day -")
	msgs := make([]*irc.Message, 0, len(lines))
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\r", "")
		msgs = append(msgs, irc.NewMessage(origin, irc.RplMotD.String(), s.target(), "- "+line))
	}
	if s.conn != nil {
		for _, msg := range msgs {
			s.server.metrics.RecordMessageSent(msg.Command)
		}
		if err := s.conn.WriteMessages(msgs); err != nil {
			debugLog.Printf("Session %d: write failed: %v", s.id, err)
			s.teardown()
			return
		}
	}
	s.sendReply(irc.RplEndOfMotD, "End of /MOTD command.")
}

// sendWelcome emits the registration burst, exactly once per session at the
// transition into the registered state.
func (s *Session) sendWelcome() {
	nick := s.target()
	origin := s.origin()
	info := s.ctx.GetServerInfo()

	s.sendReply(irc.RplWelcome, "Welcome to the Internet Relay Chat Network "+nick)
	s.sendReply(irc.RplYourHost, "Your host is "+origin+", running ircd")
	s.sendReply(irc.RplCreated, "This server was created "+s.ctx.Created.Format("Mon Jan 2 2006 at 15:04:05 MST"))
	s.sendReply(irc.RplMyInfo, origin+" ircd")
	s.sendReply(irc.RplBounce, "CHANTYPES=#", "CHANLIMIT=#:120", "NETWORK="+s.server.config.NetworkName,
		"are supported by this server")

	s.sendReply(irc.RplLUserClient,
		fmt.Sprintf("There are %d users and %d invisible on %d servers",
			info.UserCount, info.InvisibleCount, info.ServerCount))
	s.sendReply(irc.RplLUserOp, strconv.Itoa(info.OperatorCount), "IRC Operators online")
	s.sendReply(irc.RplLUserChannels, strconv.Itoa(info.ChannelCount), "channels formed")

	s.sendMotD(s.server.config.MOTD)
}

// sendCurrentMode reports the session's user mode after registration and on
// MODE queries.
func (s *Session) sendCurrentMode() {
	nick, ok := s.state.Nick()
	if !ok {
		return
	}
	s.writeNow(irc.NewMessage(s.origin(), "MODE", nick.String(), "+"+s.mode.String()))
}

// scheduleTeardown runs teardown on the owning loop. Safe to call from any
// goroutine, any number of times.
func (s *Session) scheduleTeardown() {
	s.loop.Execute(s.teardown)
}

// teardown releases everything the session holds: channel memberships, the
// registered nickname, and the connection handle. Runs on the owning loop and
// is idempotent; the cleared conn handle guards repeated calls.
func (s *Session) teardown() {
	if s.conn == nil {
		return
	}

	for name := range s.joined {
		s.ctx.PartChannel(name, s)
	}
	s.joined = make(map[irc.ChannelName]bool)

	if nick, ok := s.state.Nick(); ok {
		if err := s.ctx.UnregisterSession(s, nick); err != nil {
			errorLog.Printf("Session %d: could not unregister nick %s: %v", s.id, nick, err)
		}
	}

	s.conn.Close()
	s.conn = nil

	s.server.forgetSession(s)
	s.server.syncRegistryGauges()
	debugLog.Printf("Session %d: torn down", s.id)
}
