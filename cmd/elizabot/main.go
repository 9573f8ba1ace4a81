// Command elizabot connects a small therapist chatbot to the server. Address
// it by nick in a channel, or message it directly.
package main

import (
	"flag"
	"log"
	"math/rand"
	"strings"

	"github.com/lrstanley/girc"
)

var openers = []string{
	"How do you do. Please tell me your problem.",
	"Please tell me what's been bothering you.",
	"Is something troubling you?",
}

// keyword responses, tried in order; %s is replaced with the remainder of
// the sentence after the keyword.
var rules = []struct {
	keyword   string
	responses []string
}{
	{"i need", []string{
		"Why do you need %s?",
		"Would it really help you to get %s?",
		"Are you sure you need %s?",
	}},
	{"i am", []string{
		"How long have you been %s?",
		"Do you believe it is normal to be %s?",
		"Do you enjoy being %s?",
	}},
	{"i feel", []string{
		"Tell me more about such feelings.",
		"Do you often feel %s?",
		"When do you usually feel %s?",
	}},
	{"because", []string{
		"Is that the real reason?",
		"What other reasons come to mind?",
	}},
	{"sorry", []string{
		"Please don't apologize.",
		"Apologies are not necessary.",
	}},
	{"mother", []string{
		"Tell me more about your family.",
		"How do you feel about your mother?",
	}},
	{"yes", []string{
		"You seem quite sure.",
		"I see.",
	}},
	{"no", []string{
		"Why not?",
		"Are you saying no just to be negative?",
	}},
}

var fallbacks = []string{
	"Please go on.",
	"What does that suggest to you?",
	"I see.",
	"Very interesting.",
	"Can you elaborate on that?",
}

func respond(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "" || lower == "hello" || lower == "hi" {
		return openers[rand.Intn(len(openers))]
	}
	for _, rule := range rules {
		idx := strings.Index(lower, rule.keyword)
		if idx < 0 {
			continue
		}
		reply := rule.responses[rand.Intn(len(rule.responses))]
		if strings.Contains(reply, "%s") {
			rest := strings.TrimSpace(lower[idx+len(rule.keyword):])
			rest = strings.TrimRight(rest, ".!?")
			if rest == "" {
				continue
			}
			return strings.Replace(reply, "%s", rest, 1)
		}
		return reply
	}
	return fallbacks[rand.Intn(len(fallbacks))]
}

func main() {
	server := flag.String("server", "localhost", "Server to connect to")
	port := flag.Int("port", 6667, "Server port")
	nick := flag.String("nick", "Eliza", "Bot nickname")
	channel := flag.String("channel", "#NIO", "Channel to join")
	flag.Parse()

	client := girc.New(girc.Config{
		Server: *server,
		Port:   *port,
		Nick:   *nick,
		User:   "eliza",
		Name:   "Eliza the psychotherapist",
	})

	client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, e girc.Event) {
		log.Printf("Connected to %s, joining %s", *server, *channel)
		c.Cmd.Join(*channel)
	})

	client.Handlers.Add(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source == nil || e.Source.Name == c.GetNick() {
			return
		}
		c.Cmd.Message(*channel, e.Source.Name+": "+openers[rand.Intn(len(openers))])
	})

	client.Handlers.Add(girc.PRIVMSG, func(c *girc.Client, e girc.Event) {
		text := e.Last()
		if e.IsFromChannel() {
			// Only answer when addressed by nick.
			prefix := c.GetNick() + ":"
			if !strings.HasPrefix(text, prefix) && !strings.HasPrefix(text, c.GetNick()+",") {
				return
			}
			text = strings.TrimSpace(text[len(prefix):])
			c.Cmd.ReplyTo(e, respond(text))
			return
		}
		c.Cmd.Reply(e, respond(text))
	})

	if err := client.Connect(); err != nil {
		log.Fatalf("Connection terminated: %v", err)
	}
}
