package server

import "github.com/aeolun/ircd/pkg/irc"

// phase enumerates the registration progress of a session.
type phase uint8

const (
	phaseInitial phase = iota
	phaseNickAssigned
	phaseUserSet
	phaseRegistered
)

// State is the session registration state machine:
//
//	Initial      --NICK--> NickAssigned --USER--> Registered
//	Initial      --USER--> UserSet      --NICK--> Registered
//	Registered   --NICK--> Registered (rename)
//
// Transitions are pure: they return the successor state plus whether the
// session just became registered, and the caller performs the side effects
// (welcome burst, mode reply). State values are immutable.
type State struct {
	phase phase
	nick  irc.NickName
	info  irc.UserInfo
}

// Nick returns the assigned nickname, if any.
func (s State) Nick() (irc.NickName, bool) {
	switch s.phase {
	case phaseNickAssigned, phaseRegistered:
		return s.nick, true
	}
	return "", false
}

// UserInfo returns the supplied user identity, if any.
func (s State) UserInfo() (irc.UserInfo, bool) {
	switch s.phase {
	case phaseUserSet, phaseRegistered:
		return s.info, true
	}
	return irc.UserInfo{}, false
}

// IsRegistered reports whether the session completed registration.
func (s State) IsRegistered() bool { return s.phase == phaseRegistered }

// WithNick applies a NICK transition. From Initial or NickAssigned the nick
// is (re)assigned; from UserSet the session becomes registered; from
// Registered this is a rename that stays registered. registeredNow is true
// only on the transition into Registered.
func (s State) WithNick(nick irc.NickName) (next State, registeredNow bool) {
	switch s.phase {
	case phaseInitial, phaseNickAssigned:
		return State{phase: phaseNickAssigned, nick: nick}, false
	case phaseUserSet:
		return State{phase: phaseRegistered, nick: nick, info: s.info}, true
	default: // phaseRegistered
		return State{phase: phaseRegistered, nick: nick, info: s.info}, false
	}
}

// WithUserInfo applies a USER transition. Re-sending USER while registered is
// an error, not a transition; the dispatcher rejects it before calling here.
func (s State) WithUserInfo(info irc.UserInfo) (next State, registeredNow bool) {
	switch s.phase {
	case phaseNickAssigned:
		return State{phase: phaseRegistered, nick: s.nick, info: info}, true
	default: // phaseInitial, phaseUserSet
		return State{phase: phaseUserSet, info: info}, false
	}
}
