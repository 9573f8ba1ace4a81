package server

import (
	"strconv"
	"strings"

	"github.com/aeolun/ircd/pkg/irc"
)

// dispatch runs one parsed command on the session's loop. Handler errors are
// mapped to numeric replies for this session only; nothing here terminates
// the connection except an explicit QUIT or a transport failure inside a
// write.
func (s *Session) dispatch(cmd irc.Command) {
	if s.conn == nil {
		return // already torn down; late commands from the reader are dropped
	}
	if err := s.handleCommand(cmd); err != nil {
		s.replyError(err)
	}
}

// replyError maps both error families to their numeric replies. The type
// switches cover each family exhaustively; anything else is a programming
// fault worth logging loudly.
func (s *Session) replyError(err error) {
	switch e := err.(type) {
	// Domain errors.
	case *NicknameInUseError:
		s.sendError(irc.ErrNicknameInUse, e.Nick.String())
	case *NoSuchNickError:
		s.sendError(irc.ErrNoSuchNick, e.Nick.String())
	case *NoSuchChannelError:
		s.sendError(irc.ErrNoSuchChannel, e.Channel.String())
	case *NoSuchServerError:
		s.sendError(irc.ErrNoSuchServer, e.Server)
	case *AlreadyRegisteredError:
		s.sendError(irc.ErrAlreadyRegistered)
	case *NotRegisteredError:
		s.sendError(irc.ErrNotRegistered)
	case *CantChangeModeForOtherUsersError:
		s.sendErrorText(irc.ErrUsersDontMatch, "Can't change mode for other users")
	case *DoesNotRespondToError:
		s.sendError(irc.ErrUnknownCommand, e.Command)

	// Parser errors surfacing from command re-validation (CAP REQ ids).
	case *irc.InvalidNickNameError:
		s.sendErrorText(irc.ErrErroneusNickname, "Invalid nickname", e.Nick)
	case *irc.InvalidChannelNameError:
		s.sendErrorText(irc.ErrIllegalChannelName, "Illegal channel name", e.Name)
	case *irc.InvalidArgumentCountError:
		s.sendErrorText(irc.ErrNeedMoreParams, "Not enough parameters", e.Command)
	case *irc.InvalidCAPCommandError:
		s.sendError(irc.ErrInvalidCAPCmd, e.Sub)
	case *irc.UnknownCommandError:
		s.sendError(irc.ErrUnknownCommand, e.Command)

	default:
		errorLog.Printf("Session %d: unhandled dispatch error: %v", s.id, err)
	}
}

// protocolError answers a codec-level error without touching handler state.
func (s *Session) protocolError(err error) {
	s.replyError(err)
}

func (s *Session) handleCommand(cmd irc.Command) error {
	switch c := cmd.(type) {
	case irc.Ping:
		return s.handlePing(c)
	case irc.Pong:
		return nil // keepalive answer, nothing to do
	case irc.Nick:
		return s.handleNick(c)
	case irc.User:
		return s.handleUser(c)
	case irc.UserModeGet:
		return s.handleUserModeGet(c)
	case irc.UserModeSet:
		return s.handleUserModeSet(c)
	case irc.ChannelModeGet:
		return s.handleChannelModeGet(c)
	case irc.ChannelModeSet:
		return &DoesNotRespondToError{Command: "MODE"}
	case irc.BanMaskGet:
		return s.handleBanMaskGet(c)
	case irc.Cap:
		return s.handleCap(c)
	case irc.WhoIs:
		return s.handleWhoIs(c)
	case irc.Who:
		return s.handleWho(c)
	case irc.Join:
		return s.handleJoin(c)
	case irc.PartAll:
		return s.partChannels(s.joinedChannels(), "")
	case irc.Part:
		return s.partChannels(c.Channels, c.Message)
	case irc.PrivMsg:
		return s.handleMessageDelivery(c.Recipients, c.Text, false)
	case irc.Notice:
		return s.handleMessageDelivery(c.Recipients, c.Text, true)
	case irc.IsOn:
		return s.handleIsOn(c)
	case irc.List:
		return s.handleList(c)
	case irc.Quit:
		return s.handleQuit(c)
	case irc.Unknown:
		return &DoesNotRespondToError{Command: c.Command}
	default:
		return &DoesNotRespondToError{Command: irc.CommandName(cmd)}
	}
}

func (s *Session) handlePing(c irc.Ping) error {
	if c.Server2 != "" && c.Server2 != s.origin() {
		s.sendError(irc.ErrNoSuchServer, c.Server2)
		return nil
	}
	s.writeNow(irc.NewMessage(s.origin(), "PONG", s.origin(), c.Server))
	return nil
}

func (s *Session) handleNick(c irc.Nick) error {
	if oldNick, ok := s.state.Nick(); ok {
		if oldNick == c.Nick {
			return nil // same nick, nothing to do
		}

		// Capture the hostmask before the rename so the NICK broadcast
		// carries the old identity.
		maskBefore := s.origin()
		if id, ok := s.userID(); ok {
			maskBefore = id.String()
		}

		if err := s.ctx.RenameNick(oldNick, c.Nick); err != nil {
			return err
		}
		s.state, _ = s.state.WithNick(c.Nick)

		s.writeNow(irc.NewMessage(maskBefore, "NICK", c.Nick.String()))
		return nil
	}

	if err := s.ctx.RegisterSession(s, c.Nick); err != nil {
		return err
	}
	var registeredNow bool
	s.state, registeredNow = s.state.WithNick(c.Nick)
	if registeredNow {
		s.sendWelcome()
		s.sendCurrentMode()
	}
	s.server.syncRegistryGauges()
	return nil
}

func (s *Session) handleUser(c irc.User) error {
	if s.state.IsRegistered() {
		return &AlreadyRegisteredError{}
	}
	var registeredNow bool
	s.state, registeredNow = s.state.WithUserInfo(c.Info)
	if registeredNow {
		s.sendWelcome()
		s.sendCurrentMode()
	}
	return nil
}

func (s *Session) handleUserModeGet(c irc.UserModeGet) error {
	myNick, ok := s.state.Nick()
	if !s.state.IsRegistered() || !ok {
		return &NotRegisteredError{}
	}
	if c.Nick != myNick {
		// Same reply a query gets on the big networks.
		return &CantChangeModeForOtherUsersError{}
	}
	if s.mode.IsEmpty() {
		s.sendReply(irc.RplUModeIs, "")
	} else {
		s.sendReply(irc.RplUModeIs, "+"+s.mode.String())
	}
	return nil
}

func (s *Session) handleUserModeSet(c irc.UserModeSet) error {
	myNick, ok := s.state.Nick()
	if !s.state.IsRegistered() || !ok {
		return &NotRegisteredError{}
	}
	if c.Nick != myNick {
		return &CantChangeModeForOtherUsersError{}
	}

	newMode := s.mode.Subtract(c.Remove).Union(c.Add)
	if newMode == s.mode {
		return nil // no reply if nothing changed
	}
	s.mode = newMode

	var change string
	if !c.Add.IsEmpty() {
		change += "+" + c.Add.String()
	}
	if !c.Remove.IsEmpty() {
		change += "-" + c.Remove.String()
	}
	s.writeNow(irc.NewMessage(s.origin(), "MODE", c.Nick.String(), change))
	return nil
}

func (s *Session) handleChannelModeGet(c irc.ChannelModeGet) error {
	if !s.state.IsRegistered() {
		return &NotRegisteredError{}
	}
	mode, ok := s.ctx.GetChannelMode(c.Channel)
	if !ok {
		return &NoSuchChannelError{Channel: c.Channel}
	}
	modeStr := ""
	if !mode.IsEmpty() {
		modeStr = "+" + mode.String()
	}
	s.sendReply(irc.RplChannelModeIs, c.Channel.String(), modeStr)
	return nil
}

func (s *Session) handleBanMaskGet(c irc.BanMaskGet) error {
	if !s.state.IsRegistered() {
		return &NotRegisteredError{}
	}
	// No ban lists: the query succeeds with an empty list.
	s.sendReply(irc.RplEndOfBanList, c.Channel.String(), "End of Channel Ban List")
	return nil
}

func (s *Session) handleCap(c irc.Cap) error {
	origin, target := s.origin(), s.target()

	switch c.Sub {
	case irc.CapLS:
		s.writeNow(irc.NewMessage(origin, "CAP", target, "LS", strings.Join(serverCapabilities, " ")))
		return nil

	case irc.CapReq:
		for _, id := range c.IDs {
			if !capSupported(id) {
				return &irc.InvalidCAPCommandError{Sub: string(c.Sub)}
			}
		}
		s.activeCaps = append([]string(nil), c.IDs...)
		s.writeNow(irc.NewMessage(origin, "CAP", target, "ACK", strings.Join(s.activeCaps, " ")))
		return nil

	case irc.CapEnd:
		return nil // no reply

	default:
		return &irc.InvalidCAPCommandError{Sub: string(c.Sub)}
	}
}

func capSupported(id string) bool {
	for _, cap := range serverCapabilities {
		if cap == id {
			return true
		}
	}
	return false
}

func (s *Session) handleWhoIs(c irc.WhoIs) error {
	myNick, nickOK := s.state.Nick()
	info, infoOK := s.state.UserInfo()
	if !nickOK || !infoOK {
		return &NotRegisteredError{}
	}
	if c.Server != "" && c.Server != s.origin() {
		s.sendError(irc.ErrNoSuchServer, c.Server)
		return nil
	}

	for _, mask := range c.Masks {
		// Only the caller's own nick resolves; remote session state would
		// need a cross-loop query. Known limitation.
		if myNick.String() != mask {
			continue
		}
		s.sendReply(irc.RplWhoIsUser, mask, "~"+info.Username, s.target(), "*", info.Realname)
	}

	s.sendReply(irc.RplWhoIsServer, s.origin(), s.server.config.ServerDesc)
	s.sendReply(irc.RplEndOfWhoIs, strings.Join(c.Masks, ","), "End of /WHOIS list")
	return nil
}

// whoRow is the per-session projection gathered for WHO replies.
type whoRow struct {
	nick     irc.NickName
	info     irc.UserInfo
	target   string
	hostmask string
	valid    bool
}

func (s *Session) handleWho(c irc.Who) error {
	var sessions []*Session
	channelLabel := "*"

	if c.Mask != "" && irc.IsChannelName(c.Mask) {
		name := irc.ChannelName(c.Mask)
		subs, ok := s.ctx.GetSessionsIn(name)
		if !ok {
			return &NoSuchChannelError{Channel: name}
		}
		sessions = subs
		channelLabel = name.String()
	} else {
		sessions = s.ctx.GetSessions()
	}

	mask := c.Mask
	if mask == "" {
		mask = "*"
	}

	gatherValues(s, sessions, func(sess *Session) whoRow {
		nick, nickOK := sess.state.Nick()
		info, infoOK := sess.state.UserInfo()
		if !nickOK || !infoOK {
			return whoRow{}
		}
		row := whoRow{nick: nick, info: info, target: sess.target(), valid: true}
		if id, ok := sess.userID(); ok {
			row.hostmask = id.String()
		}
		return row
	}, func(rows []whoRow) {
		for _, row := range rows {
			if !row.valid {
				continue
			}
			servername := row.info.Servername
			if servername == "" {
				servername = s.origin()
			}
			s.sendReply(irc.RplWhoReply,
				channelLabel,
				row.info.Username,
				row.target,
				servername,
				row.nick.String(),
				"H",
				"0 "+row.info.Realname)
		}
		s.sendReply(irc.RplEndOfWho, mask, "End of /WHO list")
	})
	return nil
}

// nickProjection pairs a session pointer with its nickname so NAMES replies
// can be assembled per channel after a single gather.
type nickProjection struct {
	sess  *Session
	nick  irc.NickName
	valid bool
}

func (s *Session) handleJoin(c irc.Join) error {
	if !s.state.IsRegistered() {
		return &NotRegisteredError{}
	}
	if len(c.Channels) == 0 {
		return nil
	}

	var sourceMask string
	if id, ok := s.userID(); ok {
		sourceMask = id.String()
	}

	// Sessions whose nick we need for the NAMES replies, deduplicated
	// across the joined channels.
	requested := make(map[*Session]bool)
	var requestOrder []*Session
	channelMembers := make(map[irc.ChannelName][]*Session)
	var joinedNow []irc.ChannelName

	for _, name := range c.Channels {
		if s.joined[name] {
			continue
		}

		info := s.ctx.JoinChannel(name, s)
		s.joined[name] = true
		joinedNow = append(joinedNow, name)
		s.server.syncRegistryGauges()

		joinMsg := irc.NewMessage(sourceMask, "JOIN", name.String())
		if subs, ok := s.ctx.GetSessionsIn(name); ok {
			for _, member := range subs {
				member.SendMessage(joinMsg)
			}
		}

		s.sendReply(irc.RplTopic, name.String(), info.Welcome)

		channelMembers[name] = info.Subscribers
		for _, member := range info.Subscribers {
			if !requested[member] {
				requested[member] = true
				requestOrder = append(requestOrder, member)
			}
		}
	}

	if len(joinedNow) == 0 {
		return nil
	}

	gatherValues(s, requestOrder, func(sess *Session) nickProjection {
		nick, ok := sess.state.Nick()
		return nickProjection{sess: sess, nick: nick, valid: ok}
	}, func(projections []nickProjection) {
		nickOf := make(map[*Session]irc.NickName, len(projections))
		for _, p := range projections {
			if p.valid {
				nickOf[p.sess] = p.nick
			}
		}
		for _, name := range joinedNow {
			var members []string
			for _, member := range channelMembers[name] {
				if nick, ok := nickOf[member]; ok {
					members = append(members, nick.String())
				}
			}
			s.sendReply(irc.RplNameReply, "=", name.String(), strings.Join(members, " "))
			s.sendReply(irc.RplEndOfNames, name.String(), "End of /NAMES list")
		}
	})
	return nil
}

// joinedChannels snapshots the session-local joined set.
func (s *Session) joinedChannels() []irc.ChannelName {
	names := make([]irc.ChannelName, 0, len(s.joined))
	for name := range s.joined {
		names = append(names, name)
	}
	return names
}

// partChannels leaves the given channels. Channels the session is not in are
// skipped silently.
func (s *Session) partChannels(names []irc.ChannelName, message string) error {
	var sourceMask string
	if id, ok := s.userID(); ok {
		sourceMask = id.String()
	}

	for _, name := range names {
		if !s.joined[name] {
			continue
		}

		params := []string{name.String()}
		if message != "" {
			params = append(params, message)
		}
		partMsg := irc.NewMessage(sourceMask, "PART", params...)
		if subs, ok := s.ctx.GetSessionsIn(name); ok {
			for _, member := range subs {
				member.SendMessage(partMsg)
			}
		}

		s.ctx.PartChannel(name, s)
		delete(s.joined, name)
	}
	return nil
}

// handleMessageDelivery forwards text to each recipient. The sender identity
// always comes from this session's own registration, never from the wire.
// NOTICE deliveries suppress the error replies.
func (s *Session) handleMessageDelivery(recipients []irc.Recipient, text string, notice bool) error {
	var sourceMask string
	if id, ok := s.userID(); ok {
		sourceMask = id.String()
	}
	command := "PRIVMSG"
	if notice {
		command = "NOTICE"
	}

	for _, recipient := range recipients {
		switch recipient.Kind {
		case irc.RecipientEverything:
			if !notice {
				s.sendReply(irc.ErrNoSuchNick, "*", "No such nick/channel")
			}

		case irc.RecipientNickname:
			targetSess := s.ctx.GetSession(recipient.Nick)
			if targetSess == nil {
				if !notice {
					s.sendReply(irc.ErrNoSuchNick, recipient.Nick.String(),
						"No such nick/channel '"+recipient.Nick.String()+"'")
				}
				continue
			}
			targetSess.SendMessage(irc.NewMessage(sourceMask, command, recipient.String(), text))

		case irc.RecipientChannel:
			subs, ok := s.ctx.GetSessionsIn(recipient.Channel)
			if !ok {
				if !notice {
					s.sendReply(irc.ErrNoSuchChannel, recipient.Channel.String(),
						"No such channel '"+recipient.Channel.String()+"'")
				}
				continue
			}
			msg := irc.NewMessage(sourceMask, command, recipient.String(), text)
			for _, member := range subs {
				if member == s {
					continue // no echo back to the sender
				}
				member.SendMessage(msg)
			}
		}
	}
	return nil
}

func (s *Session) handleIsOn(c irc.IsOn) error {
	if !s.state.IsRegistered() {
		return &NotRegisteredError{}
	}

	online := make(map[irc.NickName]bool)
	for _, nick := range s.ctx.GetNicksOnline() {
		online[nick] = true
	}

	var found []string
	seen := make(map[irc.NickName]bool)
	for _, nick := range c.Nicks {
		if online[nick] && !seen[nick] {
			seen[nick] = true
			found = append(found, nick.String())
		}
	}
	s.sendReply(irc.RplISON, strings.Join(found, " "))
	return nil
}

func (s *Session) handleList(c irc.List) error {
	if !s.state.IsRegistered() {
		return &NotRegisteredError{}
	}
	if c.Target != "" && c.Target != s.origin() {
		s.sendError(irc.ErrNoSuchServer, c.Target)
		return nil
	}

	s.sendReply(irc.RplListStart, "Channel", "Users  Name")
	for _, info := range s.ctx.GetChannelInfos(c.Channels) {
		s.sendReply(irc.RplList,
			info.Name.String(),
			strconv.Itoa(len(info.Subscribers)),
			info.Welcome)
	}
	s.sendReply(irc.RplListEnd, "End of /LIST")
	return nil
}

func (s *Session) handleQuit(c irc.Quit) error {
	// Closing the connection unblocks the reader, which schedules teardown.
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}
