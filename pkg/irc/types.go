package irc

import (
	"strings"
)

const specialChars = "[]\\`_^{|}"

// NickName is a validated IRC nickname. Nicknames are compared verbatim;
// normalization is left to clients.
type NickName string

// ParseNickName validates and returns a nickname. Letters, digits, specials
// and '-' are allowed; the first character must not be a digit or '-'.
func ParseNickName(s string) (NickName, error) {
	if s == "" || len(s) > 30 {
		return "", &InvalidNickNameError{Nick: s}
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case strings.ContainsRune(specialChars, c):
		case c >= '0' && c <= '9', c == '-':
			if i == 0 {
				return "", &InvalidNickNameError{Nick: s}
			}
		default:
			return "", &InvalidNickNameError{Nick: s}
		}
	}
	return NickName(s), nil
}

func (n NickName) String() string { return string(n) }

// ChannelName is a validated IRC channel name ('#' or '&' prefix).
type ChannelName string

// ParseChannelName validates and returns a channel name.
func ParseChannelName(s string) (ChannelName, error) {
	if len(s) < 2 || len(s) > 50 {
		return "", &InvalidChannelNameError{Name: s}
	}
	if s[0] != '#' && s[0] != '&' {
		return "", &InvalidChannelNameError{Name: s}
	}
	if strings.ContainsAny(s, " ,\x07\r\n") {
		return "", &InvalidChannelNameError{Name: s}
	}
	return ChannelName(s), nil
}

func (c ChannelName) String() string { return string(c) }

// IsChannelName reports whether s has valid channel name syntax.
func IsChannelName(s string) bool {
	_, err := ParseChannelName(s)
	return err == nil
}

// UserInfo carries the identity supplied by the USER command.
type UserInfo struct {
	Username   string
	Realname   string
	Servername string // optional, empty when the client sent a mode mask instead
}

// UserID identifies a registered user on the wire (nick!user@host).
type UserID struct {
	Nick NickName
	User string
	Host string
}

func (u UserID) String() string {
	return u.Nick.String() + "!" + u.User + "@" + u.Host
}

// ParseUserID splits a nick!user@host hostmask. Missing parts stay empty.
func ParseUserID(s string) UserID {
	var id UserID
	rest := s
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		id.Nick = NickName(rest[:i])
		rest = rest[i+1:]
	} else {
		id.Nick = NickName(rest)
		return id
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		id.User = rest[:i]
		id.Host = rest[i+1:]
	} else {
		id.User = rest
	}
	return id
}

// UserMode is a bitset of per-user mode flags.
type UserMode uint32

const (
	UserModeInvisible UserMode = 1 << iota // +i
	UserModeWallops                        // +w
	UserModeOperator                       // +o
	UserModeServerNotices                  // +s
)

var userModeChars = []struct {
	flag UserMode
	char byte
}{
	{UserModeInvisible, 'i'},
	{UserModeWallops, 'w'},
	{UserModeOperator, 'o'},
	{UserModeServerNotices, 's'},
}

// ParseUserMode parses a bare mode letter sequence ("iw"). Unknown letters are
// ignored, matching common server behavior.
func ParseUserMode(s string) UserMode {
	var m UserMode
	for i := 0; i < len(s); i++ {
		for _, mc := range userModeChars {
			if mc.char == s[i] {
				m |= mc.flag
			}
		}
	}
	return m
}

func (m UserMode) String() string {
	var b strings.Builder
	for _, mc := range userModeChars {
		if m&mc.flag != 0 {
			b.WriteByte(mc.char)
		}
	}
	return b.String()
}

// Union returns m with all flags of o added.
func (m UserMode) Union(o UserMode) UserMode { return m | o }

// Subtract returns m with all flags of o removed.
func (m UserMode) Subtract(o UserMode) UserMode { return m &^ o }

// Contains reports whether all flags of o are set in m.
func (m UserMode) Contains(o UserMode) bool { return m&o == o }

// IsEmpty reports whether no flags are set.
func (m UserMode) IsEmpty() bool { return m == 0 }

// ChannelMode is a bitset of per-channel mode flags.
type ChannelMode uint32

const (
	ChannelModeNoOutsideClients    ChannelMode = 1 << iota // +n
	ChannelModeTopicOnlyByOperator                         // +t
	ChannelModeModerated                                   // +m
	ChannelModeInviteOnly                                  // +i
	ChannelModeSecret                                      // +s
)

var channelModeChars = []struct {
	flag ChannelMode
	char byte
}{
	{ChannelModeNoOutsideClients, 'n'},
	{ChannelModeTopicOnlyByOperator, 't'},
	{ChannelModeModerated, 'm'},
	{ChannelModeInviteOnly, 'i'},
	{ChannelModeSecret, 's'},
}

// ParseChannelMode parses a bare mode letter sequence ("nt").
func ParseChannelMode(s string) ChannelMode {
	var m ChannelMode
	for i := 0; i < len(s); i++ {
		for _, mc := range channelModeChars {
			if mc.char == s[i] {
				m |= mc.flag
			}
		}
	}
	return m
}

func (m ChannelMode) String() string {
	var b strings.Builder
	for _, mc := range channelModeChars {
		if m&mc.flag != 0 {
			b.WriteByte(mc.char)
		}
	}
	return b.String()
}

// Contains reports whether all flags of o are set in m.
func (m ChannelMode) Contains(o ChannelMode) bool { return m&o == o }

// IsEmpty reports whether no flags are set.
func (m ChannelMode) IsEmpty() bool { return m == 0 }

// RecipientKind discriminates message recipients.
type RecipientKind uint8

const (
	RecipientNickname RecipientKind = iota
	RecipientChannel
	RecipientEverything
)

// Recipient is a PRIVMSG/NOTICE target: a nickname, a channel, or the '*'
// wildcard.
type Recipient struct {
	Kind    RecipientKind
	Nick    NickName
	Channel ChannelName
}

// ParseRecipient classifies a single recipient token.
func ParseRecipient(s string) (Recipient, error) {
	if s == "*" {
		return Recipient{Kind: RecipientEverything}, nil
	}
	if len(s) > 0 && (s[0] == '#' || s[0] == '&') {
		name, err := ParseChannelName(s)
		if err != nil {
			return Recipient{}, err
		}
		return Recipient{Kind: RecipientChannel, Channel: name}, nil
	}
	nick, err := ParseNickName(s)
	if err != nil {
		return Recipient{}, err
	}
	return Recipient{Kind: RecipientNickname, Nick: nick}, nil
}

func (r Recipient) String() string {
	switch r.Kind {
	case RecipientChannel:
		return r.Channel.String()
	case RecipientEverything:
		return "*"
	default:
		return r.Nick.String()
	}
}
