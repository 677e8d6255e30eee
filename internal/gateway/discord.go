package gateway

import (
	"context"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/webpilot/internal/agent"
)

// DiscordGateway mirrors the Telegram surface on Discord. The channel ID is
// the session ID, so scheduled-task output lands in the channel that asked.
type DiscordGateway struct {
	Session *discordgo.Session
	Runner  Runner
}

func NewDiscordGateway(token string, runner Runner) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages

	return &DiscordGateway{
		Session: session,
		Runner:  runner,
	}, nil
}

func (dg *DiscordGateway) Start() error {
	dg.Session.AddHandler(dg.onMessage)
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Discord gateway connected as %s", dg.Session.State.User.Username)
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	go func() {
		progressMsg, err := s.ChannelMessageSend(m.ChannelID, "🛰️ **Working...**")
		if err != nil {
			log.Printf("Error sending progress message: %v", err)
		}

		var lastText string
		progress := func(records []agent.ProgressRecord) {
			if progressMsg == nil {
				return
			}
			text := formatProgress(records)
			if text == lastText {
				return
			}
			lastText = text
			if _, err := s.ChannelMessageEdit(m.ChannelID, progressMsg.ID, text); err != nil {
				log.Printf("Error editing progress message: %v", err)
			}
		}

		result := dg.Runner.ExecuteWithProgress(context.Background(), m.ChannelID, text, progress)

		reply := formatResult(result)
		if progressMsg != nil {
			if _, err := s.ChannelMessageEdit(m.ChannelID, progressMsg.ID, reply); err == nil {
				return
			}
		}
		if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
			log.Printf("Error sending result: %v", err)
		}
	}()
}

func (dg *DiscordGateway) Send(sessionID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(sessionID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
