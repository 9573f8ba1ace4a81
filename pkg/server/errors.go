package server

import (
	"fmt"

	"github.com/aeolun/ircd/pkg/irc"
)

// The domain error family. Command handlers fail fast with one of these;
// the dispatch layer maps each to a numeric reply for the offending session
// and never tears the connection down over them.

// NicknameInUseError reports a nickname already owned by another session.
type NicknameInUseError struct {
	Nick irc.NickName
}

func (e *NicknameInUseError) Error() string {
	return fmt.Sprintf("nickname %s is already in use", e.Nick)
}

// NoSuchNickError reports a nickname with no live session.
type NoSuchNickError struct {
	Nick irc.NickName
}

func (e *NoSuchNickError) Error() string {
	return fmt.Sprintf("no such nick %s", e.Nick)
}

// NoSuchChannelError reports a channel that does not exist.
type NoSuchChannelError struct {
	Channel irc.ChannelName
}

func (e *NoSuchChannelError) Error() string {
	return fmt.Sprintf("no such channel %s", e.Channel)
}

// NoSuchServerError reports a server target other than our own origin.
type NoSuchServerError struct {
	Server string
}

func (e *NoSuchServerError) Error() string {
	return fmt.Sprintf("no such server %s", e.Server)
}

// AlreadyRegisteredError reports a USER command after registration.
type AlreadyRegisteredError struct{}

func (e *AlreadyRegisteredError) Error() string { return "already registered" }

// NotRegisteredError reports a command that requires registration first.
type NotRegisteredError struct{}

func (e *NotRegisteredError) Error() string { return "not registered" }

// CantChangeModeForOtherUsersError reports a MODE targeting a foreign nick.
type CantChangeModeForOtherUsersError struct{}

func (e *CantChangeModeForOtherUsersError) Error() string {
	return "can't change mode for other users"
}

// DoesNotRespondToError reports a parsed command the server does not handle.
type DoesNotRespondToError struct {
	Command string
}

func (e *DoesNotRespondToError) Error() string {
	return fmt.Sprintf("does not respond to %s", e.Command)
}
