package server

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/aeolun/ircd/pkg/irc"
)

// TestRegistryNickInvariant drives the registry with a random sequence of
// register/rename/unregister operations and checks that the nick table stays
// consistent with a model map: every registered nick resolves to exactly the
// session that owns it, and freed nicks resolve to nothing.
func TestRegistryNickInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := NewContext("irc.test", nil)

		// Pre-built sessions; the model maps nick -> session index, and
		// owner tracks the nick each session currently holds.
		const sessionCount = 8
		sessions := make([]*Session, sessionCount)
		for i := range sessions {
			sessions[i] = &Session{id: uint64(i), joined: make(map[irc.ChannelName]bool)}
		}
		model := make(map[irc.NickName]int)
		owner := make(map[int]irc.NickName)

		nickGen := rapid.SampledFrom([]irc.NickName{
			"alice", "bob", "carol", "dave", "erin", "frank",
		})
		sessGen := rapid.IntRange(0, sessionCount-1)

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for step := 0; step < steps; step++ {
			label := fmt.Sprintf("op%d", step)
			switch rapid.IntRange(0, 2).Draw(t, label) {
			case 0: // register
				idx := sessGen.Draw(t, label+"-sess")
				nick := nickGen.Draw(t, label+"-nick")
				err := ctx.RegisterSession(sessions[idx], nick)
				if _, taken := model[nick]; taken {
					if err == nil {
						t.Fatalf("registering taken nick %s succeeded", nick)
					}
				} else if err != nil {
					t.Fatalf("registering free nick %s failed: %v", nick, err)
				} else {
					model[nick] = idx
					owner[idx] = nick
				}
			case 1: // rename
				idx := sessGen.Draw(t, label+"-sess")
				from, ok := owner[idx]
				if !ok {
					continue
				}
				to := nickGen.Draw(t, label+"-nick")
				err := ctx.RenameNick(from, to)
				if _, taken := model[to]; taken && to != from {
					if err == nil {
						t.Fatalf("rename %s -> taken nick %s succeeded", from, to)
					}
				} else if err != nil {
					t.Fatalf("rename %s -> %s failed: %v", from, to, err)
				} else if to != from {
					delete(model, from)
					model[to] = idx
					owner[idx] = to
				}
			case 2: // unregister
				idx := sessGen.Draw(t, label+"-sess")
				nick, ok := owner[idx]
				if !ok {
					continue
				}
				if err := ctx.UnregisterSession(sessions[idx], nick); err != nil {
					t.Fatalf("unregister %s failed: %v", nick, err)
				}
				delete(model, nick)
				delete(owner, idx)
			}
		}

		// Registry agrees with the model exactly.
		if got := ctx.GetServerInfo().UserCount; got != len(model) {
			t.Fatalf("user count mismatch: got %d, want %d", got, len(model))
		}
		for nick, idx := range model {
			if sess := ctx.GetSession(nick); sess != sessions[idx] {
				t.Fatalf("nick %s resolves to wrong session", nick)
			}
		}
		for _, nick := range []irc.NickName{"alice", "bob", "carol", "dave", "erin", "frank"} {
			if _, live := model[nick]; !live && ctx.GetSession(nick) != nil {
				t.Fatalf("freed nick %s still resolves", nick)
			}
		}
	})
}
