package irc

import (
	"errors"
	"fmt"
)

// The parser error family. Every error the codec can hand to the dispatch
// layer is one of these types; the server maps each to exactly one numeric
// reply. Transport-level failures are plain I/O errors and are not part of
// this family.

// InvalidNickNameError reports a syntactically invalid nickname token.
type InvalidNickNameError struct {
	Nick string
}

func (e *InvalidNickNameError) Error() string {
	return fmt.Sprintf("invalid nickname %q", e.Nick)
}

// InvalidChannelNameError reports a syntactically invalid channel name token.
type InvalidChannelNameError struct {
	Name string
}

func (e *InvalidChannelNameError) Error() string {
	return fmt.Sprintf("invalid channel name %q", e.Name)
}

// InvalidArgumentCountError reports a command with too few parameters.
type InvalidArgumentCountError struct {
	Command string
	Min     int
	Got     int
}

func (e *InvalidArgumentCountError) Error() string {
	return fmt.Sprintf("%s: need at least %d parameters, got %d", e.Command, e.Min, e.Got)
}

// InvalidCAPCommandError reports an unknown CAP subcommand or capability id.
type InvalidCAPCommandError struct {
	Sub string
}

func (e *InvalidCAPCommandError) Error() string {
	return fmt.Sprintf("invalid CAP command %q", e.Sub)
}

// UnknownCommandError reports a command verb the server does not implement.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}

// ErrLineTooLong is returned by Reader when an inbound line exceeds the
// protocol line limit. It is a transport-fatal condition.
var ErrLineTooLong = errors.New("irc: line exceeds maximum length")

// IsProtocolError reports whether err belongs to the parser error family,
// i.e. should be answered with a numeric reply instead of closing the
// connection.
func IsProtocolError(err error) bool {
	var (
		en *InvalidNickNameError
		ec *InvalidChannelNameError
		ea *InvalidArgumentCountError
		ep *InvalidCAPCommandError
		eu *UnknownCommandError
	)
	return errors.As(err, &en) || errors.As(err, &ec) || errors.As(err, &ea) ||
		errors.As(err, &ep) || errors.As(err, &eu)
}
