package server

import (
	"sync"
	"time"

	"github.com/aeolun/ircd/pkg/irc"
)

// Context holds all server-wide chat state: assigned nicknames and channels.
// It is the single owner of both maps; every access goes through a whole-
// operation method holding the readers-writer lock, so no caller ever
// observes a half-updated channel or nick table.
//
// Sessions hold a non-owning reference back to the Context for lookups; the
// Context in turn only references sessions through the nick table and channel
// subscriber lists.
type Context struct {
	Origin  string
	Created time.Time

	mu            sync.RWMutex
	nickToSession map[irc.NickName]*Session
	nameToChannel map[irc.ChannelName]*Channel
}

// ServerInfo is a consistent snapshot of aggregate counts, assembled under
// the read lock and returned by value.
type ServerInfo struct {
	UserCount      int
	InvisibleCount int
	ServerCount    int
	OperatorCount  int
	ChannelCount   int
}

// NewContext creates the server context and seeds the configured permanent
// channels.
func NewContext(origin string, defaultChannels []string) *Context {
	ctx := &Context{
		Origin:        origin,
		Created:       time.Now(),
		nickToSession: make(map[irc.NickName]*Session),
		nameToChannel: make(map[irc.ChannelName]*Channel),
	}
	for _, name := range defaultChannels {
		channel, err := irc.ParseChannelName(name)
		if err != nil {
			errorLog.Printf("Skipping invalid default channel %q: %v", name, err)
			continue
		}
		ctx.nameToChannel[channel] = newChannel(channel)
	}
	return ctx
}

// GetServerInfo returns aggregate user/operator/channel counts.
func (ctx *Context) GetServerInfo() ServerInfo {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ServerInfo{
		UserCount:      len(ctx.nickToSession),
		InvisibleCount: 0,
		ServerCount:    1,
		OperatorCount:  1,
		ChannelCount:   len(ctx.nameToChannel),
	}
}

// GetSessions returns every session with a registered nickname.
func (ctx *Context) GetSessions() []*Session {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	sessions := make([]*Session, 0, len(ctx.nickToSession))
	for _, sess := range ctx.nickToSession {
		sessions = append(sessions, sess)
	}
	return sessions
}

// GetSessionsIn returns the subscribers of the named channel in join order.
// ok is false if the channel does not exist.
func (ctx *Context) GetSessionsIn(name irc.ChannelName) ([]*Session, bool) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	channel, ok := ctx.nameToChannel[name]
	if !ok {
		return nil, false
	}
	subs := make([]*Session, len(channel.subscribers))
	copy(subs, channel.subscribers)
	return subs, true
}

// GetSession returns the session owning the given nickname, or nil.
func (ctx *Context) GetSession(nick irc.NickName) *Session {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.nickToSession[nick]
}

// GetNicksOnline returns every registered nickname.
func (ctx *Context) GetNicksOnline() []irc.NickName {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	nicks := make([]irc.NickName, 0, len(ctx.nickToSession))
	for nick := range ctx.nickToSession {
		nicks = append(nicks, nick)
	}
	return nicks
}

// GetChannelMode returns the mode of the named channel; ok is false if the
// channel does not exist.
func (ctx *Context) GetChannelMode(name irc.ChannelName) (irc.ChannelMode, bool) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	channel, ok := ctx.nameToChannel[name]
	if !ok {
		return 0, false
	}
	return channel.mode, true
}

// GetChannelInfos snapshots the named channels, or every channel when names
// is nil. Unknown names are skipped.
func (ctx *Context) GetChannelInfos(names []irc.ChannelName) []ChannelInfo {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if names != nil {
		infos := make([]ChannelInfo, 0, len(names))
		for _, name := range names {
			if channel, ok := ctx.nameToChannel[name]; ok {
				infos = append(infos, channel.info())
			}
		}
		return infos
	}
	infos := make([]ChannelInfo, 0, len(ctx.nameToChannel))
	for _, channel := range ctx.nameToChannel {
		infos = append(infos, channel.info())
	}
	return infos
}

// JoinChannel adds the session to the named channel, creating the channel on
// first join. The first joiner becomes a channel operator. Joining a channel
// the session is already in is a no-op. The returned snapshot is taken before
// the lock is released.
func (ctx *Context) JoinChannel(name irc.ChannelName, sess *Session) ChannelInfo {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	channel, ok := ctx.nameToChannel[name]
	if !ok {
		channel = newChannel(name)
		ctx.nameToChannel[name] = channel
		if nick, ok := sess.state.Nick(); ok {
			channel.operators[nick] = true
		}
	}

	channel.join(sess)
	return channel.info()
}

// PartChannel removes the session from the named channel's subscribers.
// The channel itself persists even when it becomes empty.
func (ctx *Context) PartChannel(name irc.ChannelName, sess *Session) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	channel, ok := ctx.nameToChannel[name]
	if !ok {
		return
	}
	channel.part(sess)
}

// RegisterSession claims a nickname for a session.
func (ctx *Context) RegisterSession(sess *Session, nick irc.NickName) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, taken := ctx.nickToSession[nick]; taken {
		return &NicknameInUseError{Nick: nick}
	}
	ctx.nickToSession[nick] = sess
	return nil
}

// RenameNick moves a registration from one nickname to another.
func (ctx *Context) RenameNick(from, to irc.NickName) error {
	if from == to {
		return nil
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if _, taken := ctx.nickToSession[to]; taken {
		return &NicknameInUseError{Nick: to}
	}
	sess, ok := ctx.nickToSession[from]
	if !ok {
		return &NoSuchNickError{Nick: from}
	}
	delete(ctx.nickToSession, from)
	ctx.nickToSession[to] = sess
	return nil
}

// UnregisterSession releases a nickname on teardown. If the nickname maps to
// a different session, two sessions believed they owned the same nick; that
// breaks the uniqueness invariant, so it is logged and ignored rather than
// corrupting the table.
func (ctx *Context) UnregisterSession(sess *Session, nick irc.NickName) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	owner, ok := ctx.nickToSession[nick]
	if !ok {
		return &NoSuchNickError{Nick: nick}
	}
	if owner != sess {
		errorLog.Printf("Session %d: unregister of nick %s owned by session %d, ignoring",
			sess.id, nick, owner.id)
		return nil
	}
	delete(ctx.nickToSession, nick)
	return nil
}
