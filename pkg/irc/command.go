package irc

import "strings"

// Command is one fully-parsed client command. The set of implementations is
// closed; dispatchers type-switch over it.
type Command interface {
	command() string
}

// Ping asks for a PONG. Server2 is the optional forward target.
type Ping struct {
	Server  string
	Server2 string
}

// Pong answers a PING. The server ignores it.
type Pong struct {
	Server  string
	Server2 string
}

// Nick sets or changes the client's nickname.
type Nick struct {
	Nick NickName
}

// User supplies the client's user identity.
type User struct {
	Info UserInfo
}

// UserModeGet queries a user's mode flags.
type UserModeGet struct {
	Nick NickName
}

// UserModeSet alters a user's mode flags.
type UserModeSet struct {
	Nick   NickName
	Add    UserMode
	Remove UserMode
}

// ChannelModeGet queries a channel's mode flags.
type ChannelModeGet struct {
	Channel ChannelName
}

// ChannelModeSet alters a channel's mode flags.
type ChannelModeSet struct {
	Channel ChannelName
	Add     ChannelMode
	Remove  ChannelMode
}

// BanMaskGet queries a channel's ban list (MODE <channel> b).
type BanMaskGet struct {
	Channel ChannelName
}

// CapSubCommand is a CAP negotiation subcommand.
type CapSubCommand string

const (
	CapLS  CapSubCommand = "LS"
	CapReq CapSubCommand = "REQ"
	CapAck CapSubCommand = "ACK"
	CapNak CapSubCommand = "NAK"
	CapEnd CapSubCommand = "END"
)

// Cap is a capability negotiation command.
type Cap struct {
	Sub CapSubCommand
	IDs []string
}

// WhoIs queries user details for the given masks.
type WhoIs struct {
	Server string
	Masks  []string
}

// Who lists visible users, optionally restricted to a mask.
type Who struct {
	Mask   string
	OpOnly bool
}

// Join subscribes the client to channels.
type Join struct {
	Channels []ChannelName
}

// PartAll unsubscribes the client from every joined channel (JOIN 0).
type PartAll struct{}

// Part unsubscribes the client from channels.
type Part struct {
	Channels []ChannelName
	Message  string
}

// PrivMsg delivers text to the given recipients.
type PrivMsg struct {
	Recipients []Recipient
	Text       string
}

// Notice delivers text to the given recipients without error replies.
type Notice struct {
	Recipients []Recipient
	Text       string
}

// IsOn asks which of the given nicks are online.
type IsOn struct {
	Nicks []NickName
}

// List queries channel summaries. Nil Channels means every channel.
type List struct {
	Channels []ChannelName
	Target   string
}

// Quit closes the connection.
type Quit struct {
	Message string
}

// Unknown carries a verb the server does not implement.
type Unknown struct {
	Command string
	Params  []string
}

func (Ping) command() string           { return "PING" }
func (Pong) command() string           { return "PONG" }
func (Nick) command() string           { return "NICK" }
func (User) command() string           { return "USER" }
func (UserModeGet) command() string    { return "MODE" }
func (UserModeSet) command() string    { return "MODE" }
func (ChannelModeGet) command() string { return "MODE" }
func (ChannelModeSet) command() string { return "MODE" }
func (BanMaskGet) command() string     { return "MODE" }
func (Cap) command() string            { return "CAP" }
func (WhoIs) command() string          { return "WHOIS" }
func (Who) command() string            { return "WHO" }
func (Join) command() string           { return "JOIN" }
func (PartAll) command() string        { return "JOIN" }
func (Part) command() string           { return "PART" }
func (PrivMsg) command() string        { return "PRIVMSG" }
func (Notice) command() string         { return "NOTICE" }
func (IsOn) command() string           { return "ISON" }
func (List) command() string           { return "LIST" }
func (Quit) command() string           { return "QUIT" }
func (u Unknown) command() string      { return u.Command }

// CommandName returns the wire verb of a parsed command.
func CommandName(c Command) string { return c.command() }

func needParams(m *Message, min int) error {
	if len(m.Params) < min {
		return &InvalidArgumentCountError{Command: m.Command, Min: min, Got: len(m.Params)}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseChannelList(s string) ([]ChannelName, error) {
	items := splitList(s)
	channels := make([]ChannelName, 0, len(items))
	for _, item := range items {
		name, err := ParseChannelName(item)
		if err != nil {
			return nil, err
		}
		channels = append(channels, name)
	}
	return channels, nil
}

// ParseCommand validates a raw message and produces a typed command.
// Validation failures are parser-family errors; unknown verbs come back as
// Unknown with no error so the dispatcher can decide how to answer.
func ParseCommand(m *Message) (Command, error) {
	switch m.Command {
	case "PING":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		cmd := Ping{Server: m.Params[0]}
		if len(m.Params) > 1 {
			cmd.Server2 = m.Params[1]
		}
		return cmd, nil

	case "PONG":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		cmd := Pong{Server: m.Params[0]}
		if len(m.Params) > 1 {
			cmd.Server2 = m.Params[1]
		}
		return cmd, nil

	case "NICK":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		nick, err := ParseNickName(m.Params[0])
		if err != nil {
			return nil, err
		}
		return Nick{Nick: nick}, nil

	case "USER":
		if err := needParams(m, 4); err != nil {
			return nil, err
		}
		info := UserInfo{
			Username: m.Params[0],
			Realname: m.Params[3],
		}
		// RFC 2812 sends a numeric mode mask as the second parameter; the
		// older form carries hostname and servername.
		if !isDigits(m.Params[1]) {
			info.Servername = m.Params[2]
		}
		return User{Info: info}, nil

	case "MODE":
		return parseMode(m)

	case "CAP":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		sub := CapSubCommand(strings.ToUpper(m.Params[0]))
		switch sub {
		case CapLS, CapReq, CapAck, CapNak, CapEnd:
		default:
			return nil, &InvalidCAPCommandError{Sub: m.Params[0]}
		}
		var ids []string
		for _, p := range m.Params[1:] {
			ids = append(ids, strings.Fields(p)...)
		}
		return Cap{Sub: sub, IDs: ids}, nil

	case "WHOIS":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		if len(m.Params) > 1 {
			return WhoIs{Server: m.Params[0], Masks: splitList(m.Params[1])}, nil
		}
		return WhoIs{Masks: splitList(m.Params[0])}, nil

	case "WHO":
		var cmd Who
		if len(m.Params) > 0 {
			cmd.Mask = m.Params[0]
		}
		if len(m.Params) > 1 && m.Params[1] == "o" {
			cmd.OpOnly = true
		}
		return cmd, nil

	case "JOIN":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		if m.Params[0] == "0" {
			return PartAll{}, nil
		}
		channels, err := parseChannelList(m.Params[0])
		if err != nil {
			return nil, err
		}
		return Join{Channels: channels}, nil

	case "PART":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		channels, err := parseChannelList(m.Params[0])
		if err != nil {
			return nil, err
		}
		cmd := Part{Channels: channels}
		if len(m.Params) > 1 {
			cmd.Message = m.Params[1]
		}
		return cmd, nil

	case "PRIVMSG", "NOTICE":
		if err := needParams(m, 2); err != nil {
			return nil, err
		}
		items := splitList(m.Params[0])
		recipients := make([]Recipient, 0, len(items))
		for _, item := range items {
			r, err := ParseRecipient(item)
			if err != nil {
				return nil, err
			}
			recipients = append(recipients, r)
		}
		if m.Command == "NOTICE" {
			return Notice{Recipients: recipients, Text: m.Params[1]}, nil
		}
		return PrivMsg{Recipients: recipients, Text: m.Params[1]}, nil

	case "ISON":
		if err := needParams(m, 1); err != nil {
			return nil, err
		}
		var nicks []NickName
		for _, p := range m.Params {
			for _, tok := range strings.Fields(p) {
				nick, err := ParseNickName(tok)
				if err != nil {
					return nil, err
				}
				nicks = append(nicks, nick)
			}
		}
		return IsOn{Nicks: nicks}, nil

	case "LIST":
		var cmd List
		if len(m.Params) > 0 && m.Params[0] != "" && m.Params[0] != "*" {
			channels, err := parseChannelList(m.Params[0])
			if err != nil {
				return nil, err
			}
			cmd.Channels = channels
		}
		if len(m.Params) > 1 {
			cmd.Target = m.Params[1]
		}
		return cmd, nil

	case "QUIT":
		var cmd Quit
		if len(m.Params) > 0 {
			cmd.Message = m.Params[0]
		}
		return cmd, nil

	default:
		return Unknown{Command: m.Command, Params: m.Params}, nil
	}
}

func parseMode(m *Message) (Command, error) {
	if err := needParams(m, 1); err != nil {
		return nil, err
	}
	target := m.Params[0]

	if IsChannelName(target) {
		name := ChannelName(target)
		if len(m.Params) == 1 {
			return ChannelModeGet{Channel: name}, nil
		}
		if m.Params[1] == "b" || m.Params[1] == "+b" {
			return BanMaskGet{Channel: name}, nil
		}
		add, remove := parseModeChanges(m.Params[1:])
		return ChannelModeSet{
			Channel: name,
			Add:     ParseChannelMode(add),
			Remove:  ParseChannelMode(remove),
		}, nil
	}

	nick, err := ParseNickName(target)
	if err != nil {
		return nil, err
	}
	if len(m.Params) == 1 {
		return UserModeGet{Nick: nick}, nil
	}
	add, remove := parseModeChanges(m.Params[1:])
	return UserModeSet{
		Nick:   nick,
		Add:    ParseUserMode(add),
		Remove: ParseUserMode(remove),
	}, nil
}

// parseModeChanges splits "+iw-o" style arguments into the added and removed
// letter sets. A bare letter sequence counts as an addition.
func parseModeChanges(args []string) (add, remove string) {
	adding := true
	for _, arg := range args {
		for i := 0; i < len(arg); i++ {
			switch arg[i] {
			case '+':
				adding = true
			case '-':
				adding = false
			default:
				if adding {
					add += string(arg[i])
				} else {
					remove += string(arg[i])
				}
			}
		}
	}
	return add, remove
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
