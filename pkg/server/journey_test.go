package server

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/ircd/pkg/irc"
)

// ---------------------------------------------------------------------------
// Test server
// ---------------------------------------------------------------------------

func startTestServer(t *testing.T) *Server {
	t.Helper()

	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.TCPPort = 0 // pick a free port
	config.WSPort = 0
	config.SSHPort = 0
	config.MetricsPort = 0
	config.Origin = "irc.test"
	config.NetworkName = "testnet"
	config.MOTD = []string{"first motd line", "second motd line"}
	config.DefaultChannels = []string{"#NIO"}
	config.WorkerThreads = 4

	srv, err := NewServer(config)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

// ---------------------------------------------------------------------------
// Line-protocol test client
// ---------------------------------------------------------------------------

type ircClient struct {
	t         *testing.T
	conn      net.Conn
	r         *bufio.Reader
	closeOnce sync.Once
}

func dialIRC(t *testing.T, srv *Server) *ircClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	c := &ircClient{t: t, conn: conn, r: bufio.NewReader(conn)}
	t.Cleanup(c.close)
	return c
}

func (c *ircClient) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

func (c *ircClient) sendf(format string, args ...interface{}) {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	require.NoError(c.t, err)
}

// readLine reads a single message within the timeout.
func (c *ircClient) readLine(timeout time.Duration) (*irc.Message, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})
	line, err := c.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return irc.ParseMessage(line)
}

// expect reads messages until one with the wanted command (verb or numeric)
// arrives, skipping everything else. Replies on one connection are ordered,
// but broadcasts from other sessions interleave, so skipping is the only
// robust way to wait.
func (c *ircClient) expect(command string) *irc.Message {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", command)
		}
		msg, err := c.readLine(remaining)
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", command, err)
		}
		if msg != nil && msg.Command == command {
			return msg
		}
	}
}

// expectNothing asserts that no message with the given command arrives within
// the window.
func (c *ircClient) expectNothing(command string, window time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(window)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		msg, err := c.readLine(remaining)
		if err != nil {
			return // timeout or close, both fine
		}
		if msg != nil && msg.Command == command {
			c.t.Fatalf("unexpected %s: %v", command, msg)
		}
	}
}

// register performs NICK/USER registration and consumes the welcome burst.
func (c *ircClient) register(nick string) {
	c.t.Helper()
	c.sendf("NICK %s", nick)
	c.sendf("USER %s 0 * :%s the tester", nick, nick)
	welcome := c.expect(irc.RplWelcome.String())
	require.Contains(c.t, welcome.Params[len(welcome.Params)-1], nick)
	c.expect(irc.RplEndOfMotD.String())
	c.expect("MODE")
}

// ---------------------------------------------------------------------------
// Journeys
// ---------------------------------------------------------------------------

func TestJourneyRegistration(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)

	c.sendf("NICK alice")
	c.sendf("USER alice 0 * :Alice Archer")

	welcome := c.expect("001")
	assert.Equal(t, "irc.test", welcome.Prefix)
	assert.Equal(t, "alice", welcome.Params[0])
	assert.Contains(t, welcome.Params[1], "alice")

	c.expect("002")
	c.expect("003")
	c.expect("004")

	isupport := c.expect("005")
	assert.Contains(t, strings.Join(isupport.Params, " "), "NETWORK=testnet")

	c.expect("251")
	c.expect("252")
	c.expect("254")

	c.expect("375")
	motd := c.expect("372")
	assert.Contains(t, motd.Params[len(motd.Params)-1], "first motd line")
	c.expect("376")

	mode := c.expect("MODE")
	assert.Equal(t, "alice", mode.Params[0])
}

func TestJourneyRegistrationUserFirst(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)

	// USER before NICK also completes registration, exactly once.
	c.sendf("USER bob 0 * :Bob Builder")
	c.sendf("NICK bob")
	c.expect("001")
	c.expect("376")
}

func TestJourneyDuplicateNick(t *testing.T) {
	srv := startTestServer(t)
	first := dialIRC(t, srv)
	first.register("alice")

	second := dialIRC(t, srv)
	second.sendf("NICK alice")
	reply := second.expect("433")
	assert.Equal(t, "alice", reply.Params[1])

	// The loser picks another nick and registers fine.
	second.sendf("NICK alicia")
	second.sendf("USER alicia 0 * :Alicia")
	second.expect("001")
}

func TestJourneyNickRename(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)
	c.register("alice")

	c.sendf("NICK alicia")
	rename := c.expect("NICK")
	assert.True(t, strings.HasPrefix(rename.Prefix, "alice!"), "prefix %q carries the old identity", rename.Prefix)
	assert.Equal(t, []string{"alicia"}, rename.Params)

	// The old nick is free again.
	other := dialIRC(t, srv)
	other.sendf("NICK alice")
	other.sendf("USER alice 0 * :Alice II")
	other.expect("001")
}

func TestJourneyCommandsRequireRegistration(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)

	c.sendf("JOIN #NIO")
	assert.Equal(t, "451", c.expect("451").Command)

	c.sendf("LIST")
	c.expect("451")

	c.sendf("ISON alice")
	c.expect("451")
}

func TestJourneyPing(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)

	c.sendf("PING token123")
	pong := c.expect("PONG")
	assert.Equal(t, "irc.test", pong.Prefix)
	assert.Equal(t, []string{"irc.test", "token123"}, pong.Params)

	// Forwarding to an unknown server is refused.
	c.sendf("PING token123 other.server")
	c.expect("402")
}

func TestJourneyJoinAndNames(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("JOIN #test")
	topic := alice.expect("332")
	assert.Equal(t, "#test", topic.Params[1])
	assert.Contains(t, topic.Params[2], "#test")

	join := alice.expect("JOIN")
	assert.True(t, strings.HasPrefix(join.Prefix, "alice!"))
	assert.Equal(t, []string{"#test"}, join.Params)

	names := alice.expect("353")
	assert.Contains(t, names.Params[len(names.Params)-1], "alice")
	alice.expect("366")

	// A second joiner sees both nicks and alice sees the JOIN broadcast.
	bob := dialIRC(t, srv)
	bob.register("bob")
	bob.sendf("JOIN #test")
	names = bob.expect("353")
	memberList := names.Params[len(names.Params)-1]
	assert.Contains(t, memberList, "alice")
	assert.Contains(t, memberList, "bob")

	joinSeen := alice.expect("JOIN")
	assert.True(t, strings.HasPrefix(joinSeen.Prefix, "bob!"))
}

func TestJourneyChannelMessage(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("JOIN #chat")
	alice.expect("366")
	bob.sendf("JOIN #chat")
	bob.expect("366")
	alice.expect("JOIN") // bob's arrival

	alice.sendf("PRIVMSG #chat :hello bob")
	msg := bob.expect("PRIVMSG")
	assert.True(t, strings.HasPrefix(msg.Prefix, "alice!"))
	assert.Equal(t, []string{"#chat", "hello bob"}, msg.Params)

	// No echo back to the sender.
	alice.expectNothing("PRIVMSG", 300*time.Millisecond)
}

func TestJourneyDirectMessage(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("PRIVMSG bob :psst")
	msg := bob.expect("PRIVMSG")
	assert.Equal(t, []string{"bob", "psst"}, msg.Params)

	// Unknown nicks earn a 401; NOTICE stays silent.
	alice.sendf("PRIVMSG ghost :anyone?")
	reply := alice.expect("401")
	assert.Equal(t, "ghost", reply.Params[1])

	alice.sendf("NOTICE ghost :anyone?")
	alice.expectNothing("401", 300*time.Millisecond)
}

func TestJourneyPart(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("JOIN #room")
	alice.expect("366")
	bob.sendf("JOIN #room")
	bob.expect("366")
	alice.expect("JOIN")

	bob.sendf("PART #room :gotta run")
	part := alice.expect("PART")
	assert.True(t, strings.HasPrefix(part.Prefix, "bob!"))
	assert.Equal(t, []string{"#room", "gotta run"}, part.Params)

	// Messages no longer reach bob.
	alice.sendf("PRIVMSG #room :still here?")
	bob.expectNothing("PRIVMSG", 300*time.Millisecond)
}

func TestJourneyJoinZeroPartsAll(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	for _, ch := range []string{"#one", "#two"} {
		alice.sendf("JOIN %s", ch)
		alice.expect("366")
		bob.sendf("JOIN %s", ch)
		bob.expect("366")
		alice.expect("JOIN")
	}

	bob.sendf("JOIN 0")
	alice.expect("PART")
	alice.expect("PART")
}

func TestJourneyList(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("JOIN #busy")
	alice.expect("366")

	alice.sendf("LIST")
	alice.expect("321")

	rows := make(map[string]string)
	for {
		msg, err := alice.readLine(5 * time.Second)
		require.NoError(t, err)
		if msg.Command == "323" {
			break
		}
		require.Equal(t, "322", msg.Command)
		rows[msg.Params[1]] = msg.Params[2]
	}

	// The seeded channel and the joined one both show up, with user counts.
	assert.Equal(t, "0", rows["#NIO"])
	assert.Equal(t, "1", rows["#busy"])
}

func TestJourneyIsOn(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("ISON alice bob ghost")
	reply := alice.expect("303")
	online := strings.Fields(reply.Params[len(reply.Params)-1])
	assert.ElementsMatch(t, []string{"alice", "bob"}, online)
}

func TestJourneyWho(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("JOIN #crew")
	alice.expect("366")
	bob.sendf("JOIN #crew")
	bob.expect("366")
	alice.expect("JOIN")

	alice.sendf("WHO #crew")
	var nicks []string
	for {
		msg, err := alice.readLine(5 * time.Second)
		require.NoError(t, err)
		if msg.Command == "315" {
			break
		}
		require.Equal(t, "352", msg.Command)
		assert.Equal(t, "#crew", msg.Params[1])
		nicks = append(nicks, msg.Params[5])
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, nicks)

	// WHO against a missing channel is an error.
	alice.sendf("WHO #missing")
	alice.expect("403")
}

func TestJourneyWhoIs(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("WHOIS alice")
	user := alice.expect("311")
	assert.Equal(t, "alice", user.Params[1])
	assert.Equal(t, "~alice", user.Params[2])
	alice.expect("312")
	alice.expect("318")
}

func TestJourneyUserMode(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("MODE alice +iw")
	mode := alice.expect("MODE")
	assert.Equal(t, "alice", mode.Params[0])
	assert.Contains(t, mode.Params[1], "i")

	alice.sendf("MODE alice")
	reply := alice.expect("221")
	assert.Contains(t, reply.Params[1], "i")
	assert.Contains(t, reply.Params[1], "w")

	// Someone else's mode is off limits.
	bob := dialIRC(t, srv)
	bob.register("bob")
	alice.sendf("MODE bob")
	alice.expect("502")
}

func TestJourneyChannelMode(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("MODE #NIO")
	reply := alice.expect("324")
	assert.Equal(t, "#NIO", reply.Params[1])
	assert.Contains(t, reply.Params[2], "n")

	alice.sendf("MODE #NIO b")
	alice.expect("368")

	alice.sendf("MODE #missing")
	alice.expect("403")
}

func TestJourneyCap(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)

	c.sendf("CAP LS")
	ls := c.expect("CAP")
	assert.Equal(t, "LS", ls.Params[1])
	assert.Contains(t, ls.Params[2], "multi-prefix")

	c.sendf("CAP REQ :multi-prefix")
	ack := c.expect("CAP")
	assert.Equal(t, "ACK", ack.Params[1])

	c.sendf("CAP REQ :no-such-cap")
	c.expect("410")
}

func TestJourneyUnknownCommand(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)
	c.register("alice")

	c.sendf("FROBNICATE now")
	reply := c.expect("421")
	assert.Equal(t, "FROBNICATE", reply.Params[1])
}

func TestJourneyQuitFreesNick(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")

	alice.sendf("QUIT :bye")

	// The nick becomes available once teardown completes.
	require.Eventually(t, func() bool {
		return srv.Context().GetSession("alice") == nil
	}, 5*time.Second, 20*time.Millisecond)

	second := dialIRC(t, srv)
	second.sendf("NICK alice")
	second.sendf("USER alice 0 * :Alice II")
	second.expect("001")
}

func TestJourneyDisconnectLeavesChannels(t *testing.T) {
	srv := startTestServer(t)
	alice := dialIRC(t, srv)
	alice.register("alice")
	bob := dialIRC(t, srv)
	bob.register("bob")

	alice.sendf("JOIN #room")
	alice.expect("366")
	bob.sendf("JOIN #room")
	bob.expect("366")

	bob.close()

	require.Eventually(t, func() bool {
		subs, ok := srv.Context().GetSessionsIn("#room")
		return ok && len(subs) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestJourneyTeardownIsIdempotent(t *testing.T) {
	srv := startTestServer(t)

	alice := dialIRC(t, srv)
	alice.register("alice")
	alice.sendf("JOIN #NIO")
	alice.expect("366")

	var sess *Session
	require.Eventually(t, func() bool {
		sess = srv.Context().GetSession("alice")
		return sess != nil
	}, 5*time.Second, 20*time.Millisecond)

	sess.scheduleTeardown()
	require.Eventually(t, func() bool {
		return srv.Context().GetSession("alice") == nil
	}, 5*time.Second, 20*time.Millisecond)

	// A successor takes over the freed nick and the channel slot.
	heir := dialIRC(t, srv)
	heir.register("alice")
	heir.sendf("JOIN #NIO")
	heir.expect("366")

	heirSess := srv.Context().GetSession("alice")
	require.NotNil(t, heirSess)
	require.NotSame(t, sess, heirSess)

	// Tearing the dead session down a second time must not disturb the
	// successor's registration or membership.
	sess.scheduleTeardown()
	done := make(chan struct{})
	sess.loop.Execute(func() { close(done) })
	<-done

	assert.Same(t, heirSess, srv.Context().GetSession("alice"))
	subs, ok := srv.Context().GetSessionsIn("#NIO")
	require.True(t, ok)
	assert.Contains(t, subs, heirSess)
}

func TestJourneyOversizedLineDisconnects(t *testing.T) {
	srv := startTestServer(t)
	c := dialIRC(t, srv)
	c.register("alice")

	c.sendf("PRIVMSG #NIO :%s", strings.Repeat("x", 2*irc.MaxLineLength))

	require.Eventually(t, func() bool {
		return srv.Context().GetSession("alice") == nil
	}, 5*time.Second, 20*time.Millisecond)
}
