package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/store"
)

// TelegramGateway turns chat messages into orchestrator runs. While a run
// executes it keeps one progress message updated with the live step list.
type TelegramGateway struct {
	Bot     *tgbotapi.BotAPI
	Runner  Runner
	Journal *store.Journal
}

func NewTelegramGateway(token string, runner Runner, journal *store.Journal) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:     bot,
		Runner:  runner,
		Journal: journal,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		go tg.handle(update.Message)
	}
	return nil
}

func (tg *TelegramGateway) handle(msg *tgbotapi.Message) {
	sessionID := fmt.Sprintf("%d", msg.Chat.ID)
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/schedule"):
		tg.handleSchedule(msg.Chat.ID, sessionID, text)
		return
	case strings.HasPrefix(text, "/history"):
		tg.handleHistory(msg.Chat.ID, sessionID)
		return
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		tg.reply(msg.Chat.ID, "Send me a browser task and I'll work through it.\n\n"+
			"/schedule <seconds> <task> - run a task on an interval (0 = once)\n"+
			"/history - recent runs for this chat")
		return
	}

	tg.runTask(msg.Chat.ID, sessionID, text)
}

func (tg *TelegramGateway) runTask(chatID int64, sessionID, query string) {
	sent, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, "🛰️ *Working...*"))
	if err != nil {
		log.Printf("Error sending progress message: %v", err)
	}

	var lastText string
	progress := func(records []agent.ProgressRecord) {
		if sent.MessageID == 0 {
			return
		}
		text := formatProgress(records)
		if text == lastText {
			return
		}
		lastText = text
		edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, text)
		edit.ParseMode = "Markdown"
		if _, err := tg.Bot.Send(edit); err != nil {
			log.Printf("Error editing progress message: %v", err)
		}
	}

	result := tg.Runner.ExecuteWithProgress(context.Background(), sessionID, query, progress)

	if sent.MessageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, formatResult(result))
		edit.ParseMode = "Markdown"
		if _, err := tg.Bot.Send(edit); err != nil {
			// Markdown in answers can break parsing; fall back to plain text.
			edit.ParseMode = ""
			tg.Bot.Send(edit)
		}
		return
	}
	tg.reply(chatID, formatResult(result))
}

func (tg *TelegramGateway) handleSchedule(chatID int64, sessionID, text string) {
	parts := strings.SplitN(text, " ", 3)
	if len(parts) < 3 {
		tg.reply(chatID, "Usage: /schedule <seconds> <task>")
		return
	}
	interval, err := strconv.Atoi(parts[1])
	if err != nil || interval < 0 {
		tg.reply(chatID, "Interval must be a non-negative number of seconds.")
		return
	}
	if tg.Journal == nil {
		tg.reply(chatID, "Scheduling is not available: no journal configured.")
		return
	}
	if err := tg.Journal.AddTask(sessionID, parts[2], interval); err != nil {
		tg.reply(chatID, "Could not schedule the task: "+err.Error())
		return
	}
	if interval == 0 {
		tg.reply(chatID, "📌 Queued to run once shortly.")
	} else {
		tg.reply(chatID, fmt.Sprintf("📌 Scheduled every %d seconds.", interval))
	}
}

func (tg *TelegramGateway) handleHistory(chatID int64, sessionID string) {
	if tg.Journal == nil {
		tg.reply(chatID, "History is not available: no journal configured.")
		return
	}
	runs, err := tg.Journal.RecentRuns(sessionID, 5)
	if err != nil {
		tg.reply(chatID, "Could not load history: "+err.Error())
		return
	}
	if len(runs) == 0 {
		tg.reply(chatID, "No runs yet for this chat.")
		return
	}

	var b strings.Builder
	b.WriteString("*Recent runs*\n")
	for _, r := range runs {
		icon := "✅"
		if !r.Success {
			icon = "❌"
		}
		fmt.Fprintf(&b, "\n%s %s (%d steps, %s)", icon, truncate(r.Objective, 60), r.Steps, r.CreatedAt.Format("Jan 2 15:04"))
	}
	tg.reply(chatID, b.String())
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := tg.Bot.Send(msg); err != nil {
		msg.ParseMode = ""
		tg.Bot.Send(msg)
	}
}

func (tg *TelegramGateway) Send(sessionID string, text string) error {
	id, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", sessionID)
	}

	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = "Markdown"
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
