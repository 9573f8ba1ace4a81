package irc

import "fmt"

// ReplyCode is a three-digit IRC numeric reply code.
type ReplyCode int

// Command replies.
const (
	RplWelcome       ReplyCode = 1
	RplYourHost      ReplyCode = 2
	RplCreated       ReplyCode = 3
	RplMyInfo        ReplyCode = 4
	RplBounce        ReplyCode = 5
	RplUModeIs       ReplyCode = 221
	RplLUserClient   ReplyCode = 251
	RplLUserOp       ReplyCode = 252
	RplLUserChannels ReplyCode = 254
	RplISON          ReplyCode = 303
	RplWhoIsUser     ReplyCode = 311
	RplWhoIsServer   ReplyCode = 312
	RplEndOfWho      ReplyCode = 315
	RplEndOfWhoIs    ReplyCode = 318
	RplListStart     ReplyCode = 321
	RplList          ReplyCode = 322
	RplListEnd       ReplyCode = 323
	RplChannelModeIs ReplyCode = 324
	RplTopic         ReplyCode = 332
	RplWhoReply      ReplyCode = 352
	RplNameReply     ReplyCode = 353
	RplEndOfNames    ReplyCode = 366
	RplEndOfBanList  ReplyCode = 368
	RplMotD          ReplyCode = 372
	RplMotDStart     ReplyCode = 375
	RplEndOfMotD     ReplyCode = 376
)

// Error replies.
const (
	ErrNoSuchNick         ReplyCode = 401
	ErrNoSuchServer       ReplyCode = 402
	ErrNoSuchChannel      ReplyCode = 403
	ErrInvalidCAPCmd      ReplyCode = 410
	ErrUnknownCommand     ReplyCode = 421
	ErrErroneusNickname   ReplyCode = 432
	ErrNicknameInUse      ReplyCode = 433
	ErrNotRegistered      ReplyCode = 451
	ErrNeedMoreParams     ReplyCode = 461
	ErrAlreadyRegistered  ReplyCode = 462
	ErrIllegalChannelName ReplyCode = 479
	ErrUsersDontMatch     ReplyCode = 502
)

// String formats the code the way it appears on the wire (zero-padded).
func (c ReplyCode) String() string {
	return fmt.Sprintf("%03d", int(c))
}

// errorText holds the default human-readable text for every error numeric the
// server emits. The map is closed: an unmapped code indicates a missing entry,
// not a user error.
var errorText = map[ReplyCode]string{
	ErrNoSuchNick:         "No such nick/channel",
	ErrNoSuchServer:       "No such server.",
	ErrNoSuchChannel:      "No such channel",
	ErrInvalidCAPCmd:      "Invalid CAP subcommand",
	ErrUnknownCommand:     "No such command.",
	ErrErroneusNickname:   "Invalid nickname",
	ErrNicknameInUse:      "Nickname is already in use.",
	ErrNotRegistered:      "You have not registered",
	ErrNeedMoreParams:     "Not enough parameters",
	ErrAlreadyRegistered:  "You may not reregister.",
	ErrIllegalChannelName: "Illegal channel name",
	ErrUsersDontMatch:     "Users don't match",
}

// ErrorText returns the default text for an error numeric.
func (c ReplyCode) ErrorText() string {
	if s, ok := errorText[c]; ok {
		return s
	}
	return fmt.Sprintf("Unmapped error code %d", int(c))
}
