package irc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, line string) Command {
	t.Helper()
	msg, err := ParseMessage(line)
	require.NoError(t, err)
	cmd, err := ParseCommand(msg)
	require.NoError(t, err)
	return cmd
}

func TestParseCommandNick(t *testing.T) {
	cmd := parse(t, "NICK alice")
	assert.Equal(t, Nick{Nick: "alice"}, cmd)
}

func TestParseCommandNickInvalid(t *testing.T) {
	msg, err := ParseMessage("NICK 9lives")
	require.NoError(t, err)
	_, err = ParseCommand(msg)
	var nickErr *InvalidNickNameError
	require.ErrorAs(t, err, &nickErr)
	assert.Equal(t, "9lives", nickErr.Nick)
}

func TestParseCommandUser(t *testing.T) {
	// RFC 2812 form: numeric mode mask, no servername
	cmd := parse(t, "USER alice 0 * :Alice Archer")
	assert.Equal(t, User{Info: UserInfo{
		Username: "alice",
		Realname: "Alice Archer",
	}}, cmd)

	// RFC 1459 form carries the servername
	cmd = parse(t, "USER alice alicehost chat.example.org :Alice Archer")
	assert.Equal(t, User{Info: UserInfo{
		Username:   "alice",
		Realname:   "Alice Archer",
		Servername: "chat.example.org",
	}}, cmd)
}

func TestParseCommandUserTooFewParams(t *testing.T) {
	msg, err := ParseMessage("USER alice 0 *")
	require.NoError(t, err)
	_, err = ParseCommand(msg)
	var countErr *InvalidArgumentCountError
	require.ErrorAs(t, err, &countErr)
	assert.Equal(t, 4, countErr.Min)
	assert.Equal(t, 3, countErr.Got)
}

func TestParseCommandMode(t *testing.T) {
	t.Run("user mode get", func(t *testing.T) {
		assert.Equal(t, UserModeGet{Nick: "alice"}, parse(t, "MODE alice"))
	})

	t.Run("user mode set", func(t *testing.T) {
		cmd := parse(t, "MODE alice +iw-o")
		assert.Equal(t, UserModeSet{
			Nick:   "alice",
			Add:    UserModeInvisible | UserModeWallops,
			Remove: UserModeOperator,
		}, cmd)
	})

	t.Run("channel mode get", func(t *testing.T) {
		assert.Equal(t, ChannelModeGet{Channel: "#NIO"}, parse(t, "MODE #NIO"))
	})

	t.Run("channel mode set", func(t *testing.T) {
		cmd := parse(t, "MODE #NIO +nt")
		assert.Equal(t, ChannelModeSet{
			Channel: "#NIO",
			Add:     ChannelModeNoOutsideClients | ChannelModeTopicOnlyByOperator,
		}, cmd)
	})

	t.Run("ban mask query", func(t *testing.T) {
		assert.Equal(t, BanMaskGet{Channel: "#NIO"}, parse(t, "MODE #NIO b"))
		assert.Equal(t, BanMaskGet{Channel: "#NIO"}, parse(t, "MODE #NIO +b"))
	})
}

func TestParseCommandCap(t *testing.T) {
	cmd := parse(t, "CAP LS")
	assert.Equal(t, Cap{Sub: CapLS}, cmd)

	cmd = parse(t, "CAP REQ :multi-prefix sasl")
	assert.Equal(t, Cap{Sub: CapReq, IDs: []string{"multi-prefix", "sasl"}}, cmd)

	msg, err := ParseMessage("CAP FROB")
	require.NoError(t, err)
	_, err = ParseCommand(msg)
	var capErr *InvalidCAPCommandError
	require.ErrorAs(t, err, &capErr)
}

func TestParseCommandJoin(t *testing.T) {
	cmd := parse(t, "JOIN #NIO,#SwiftServer")
	assert.Equal(t, Join{Channels: []ChannelName{"#NIO", "#SwiftServer"}}, cmd)

	// JOIN 0 means part everything
	assert.Equal(t, PartAll{}, parse(t, "JOIN 0"))
}

func TestParseCommandJoinInvalidChannel(t *testing.T) {
	msg, err := ParseMessage("JOIN nochan")
	require.NoError(t, err)
	_, err = ParseCommand(msg)
	var chanErr *InvalidChannelNameError
	require.ErrorAs(t, err, &chanErr)
}

func TestParseCommandPart(t *testing.T) {
	cmd := parse(t, "PART #NIO :gotta go")
	assert.Equal(t, Part{Channels: []ChannelName{"#NIO"}, Message: "gotta go"}, cmd)
}

func TestParseCommandPrivMsg(t *testing.T) {
	cmd := parse(t, "PRIVMSG #NIO,bob :hello")
	require.IsType(t, PrivMsg{}, cmd)
	pm := cmd.(PrivMsg)
	assert.Equal(t, "hello", pm.Text)
	require.Len(t, pm.Recipients, 2)
	assert.Equal(t, Recipient{Kind: RecipientChannel, Channel: "#NIO"}, pm.Recipients[0])
	assert.Equal(t, Recipient{Kind: RecipientNickname, Nick: "bob"}, pm.Recipients[1])
}

func TestParseCommandNotice(t *testing.T) {
	cmd := parse(t, "NOTICE bob :psst")
	require.IsType(t, Notice{}, cmd)
	assert.Equal(t, "psst", cmd.(Notice).Text)
}

func TestParseCommandWhoIs(t *testing.T) {
	assert.Equal(t, WhoIs{Masks: []string{"alice"}}, parse(t, "WHOIS alice"))
	assert.Equal(t, WhoIs{Server: "chat.example.org", Masks: []string{"alice", "bob"}},
		parse(t, "WHOIS chat.example.org alice,bob"))
}

func TestParseCommandWho(t *testing.T) {
	assert.Equal(t, Who{}, parse(t, "WHO"))
	assert.Equal(t, Who{Mask: "#NIO"}, parse(t, "WHO #NIO"))
	assert.Equal(t, Who{Mask: "*", OpOnly: true}, parse(t, "WHO * o"))
}

func TestParseCommandIsOn(t *testing.T) {
	cmd := parse(t, "ISON alice bob")
	assert.Equal(t, IsOn{Nicks: []NickName{"alice", "bob"}}, cmd)
}

func TestParseCommandList(t *testing.T) {
	assert.Equal(t, List{}, parse(t, "LIST"))
	assert.Equal(t, List{Channels: []ChannelName{"#NIO"}}, parse(t, "LIST #NIO"))
	assert.Equal(t, List{Channels: []ChannelName{"#NIO"}, Target: "chat.example.org"},
		parse(t, "LIST #NIO chat.example.org"))
}

func TestParseCommandQuit(t *testing.T) {
	assert.Equal(t, Quit{}, parse(t, "QUIT"))
	assert.Equal(t, Quit{Message: "bye"}, parse(t, "QUIT :bye"))
}

func TestParseCommandUnknown(t *testing.T) {
	cmd := parse(t, "FROBNICATE a b")
	assert.Equal(t, Unknown{Command: "FROBNICATE", Params: []string{"a", "b"}}, cmd)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "NICK", CommandName(Nick{Nick: "alice"}))
	assert.Equal(t, "MODE", CommandName(UserModeGet{Nick: "alice"}))
	assert.Equal(t, "FROB", CommandName(Unknown{Command: "FROB"}))
}
