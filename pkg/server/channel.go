package server

import (
	"fmt"

	"github.com/aeolun/ircd/pkg/irc"
)

// Channel tracks one chat room. Channels are owned by the Context, which
// holds the only strong references; every mutable field is written under the
// Context's write lock. Channels are never destroyed once created, even with
// zero subscribers: rooms are permanent by policy.
type Channel struct {
	name irc.ChannelName

	// Owned and write-protected by the Context lock.
	welcome     string
	operators   map[irc.NickName]bool
	subscribers []*Session // insertion order = join order
	mode        irc.ChannelMode
}

// ChannelInfo is an immutable snapshot of channel state, taken while the
// Context lock is held and safe to use after it is released.
type ChannelInfo struct {
	Name        irc.ChannelName
	Welcome     string
	Operators   []irc.NickName
	Subscribers []*Session
	Mode        irc.ChannelMode
}

func newChannel(name irc.ChannelName) *Channel {
	return &Channel{
		name:      name,
		welcome:   fmt.Sprintf("Welcome to %s!", name),
		operators: make(map[irc.NickName]bool),
		mode:      irc.ChannelModeNoOutsideClients | irc.ChannelModeTopicOnlyByOperator,
	}
}

// info snapshots the channel. Caller holds at least the Context read lock.
func (c *Channel) info() ChannelInfo {
	ops := make([]irc.NickName, 0, len(c.operators))
	for nick := range c.operators {
		ops = append(ops, nick)
	}
	subs := make([]*Session, len(c.subscribers))
	copy(subs, c.subscribers)
	return ChannelInfo{
		Name:        c.name,
		Welcome:     c.welcome,
		Operators:   ops,
		Subscribers: subs,
		Mode:        c.mode,
	}
}

// join appends the session to the subscriber list. Caller holds the Context
// write lock. Returns false if already subscribed.
func (c *Channel) join(sess *Session) bool {
	for _, s := range c.subscribers {
		if s == sess {
			return false
		}
	}
	c.subscribers = append(c.subscribers, sess)
	return true
}

// part removes the session from the subscriber list. Caller holds the Context
// write lock. Returns false if not subscribed.
func (c *Channel) part(sess *Session) bool {
	for i, s := range c.subscribers {
		if s == sess {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return true
		}
	}
	return false
}
