package irc

import (
	"bufio"
	"io"
	"strings"
)

// MaxLineLength is the RFC 1459 line limit, including the trailing CRLF.
const MaxLineLength = 512

// Message is one parsed IRC line: an optional prefix, a command verb or
// three-digit numeric, and up to 15 parameters.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// NewMessage builds a message with the given origin prefix.
func NewMessage(prefix, command string, params ...string) *Message {
	return &Message{Prefix: prefix, Command: command, Params: params}
}

// ParseMessage parses a single IRC line (without the trailing CRLF).
// An empty line yields nil, nil; callers skip those.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, nil
	}

	msg := &Message{}

	if line[0] == ':' {
		idx := strings.IndexByte(line, ' ')
		if idx < 0 {
			return nil, &UnknownCommandError{Command: line}
		}
		msg.Prefix = line[1:idx]
		line = strings.TrimLeft(line[idx+1:], " ")
	}

	if line == "" {
		return nil, &UnknownCommandError{Command: ""}
	}

	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		msg.Command = strings.ToUpper(line[:idx])
		line = strings.TrimLeft(line[idx+1:], " ")
	} else {
		msg.Command = strings.ToUpper(line)
		line = ""
	}

	for line != "" {
		if line[0] == ':' {
			msg.Params = append(msg.Params, line[1:])
			break
		}
		if idx := strings.IndexByte(line, ' '); idx >= 0 {
			msg.Params = append(msg.Params, line[:idx])
			line = strings.TrimLeft(line[idx+1:], " ")
		} else {
			msg.Params = append(msg.Params, line)
			break
		}
	}

	return msg, nil
}

// String serializes the message without the trailing CRLF.
func (m *Message) String() string {
	var b strings.Builder

	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)

	for i, param := range m.Params {
		b.WriteByte(' ')
		last := i == len(m.Params)-1
		if last && (param == "" || strings.ContainsRune(param, ' ') || strings.HasPrefix(param, ":")) {
			b.WriteByte(':')
		}
		b.WriteString(param)
	}

	return b.String()
}

// Bytes serializes the message including the trailing CRLF, ready for the
// wire.
func (m *Message) Bytes() []byte {
	return append([]byte(m.String()), '\r', '\n')
}

// Reader reads CRLF-delimited IRC lines from a stream and parses them.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for message reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, MaxLineLength)}
}

// ReadMessage reads and parses the next non-empty line. It returns I/O errors
// verbatim; oversized lines yield ErrLineTooLong. Parse failures surface as
// parser-family errors and leave the stream readable.
func (r *Reader) ReadMessage() (*Message, error) {
	for {
		// ReadSlice, not ReadString: ReadString keeps accumulating past the
		// buffer size, so it would never report an oversized line.
		raw, err := r.r.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			return nil, ErrLineTooLong
		}
		line := string(raw)
		if err != nil {
			if err == io.EOF && strings.TrimSpace(line) != "" {
				// final line without terminator
				return ParseMessage(line)
			}
			return nil, err
		}
		msg, err := ParseMessage(line)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue // empty line
		}
		return msg, nil
	}
}
