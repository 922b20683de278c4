package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hemesh11/autotasker/internal/agent"
	"github.com/Hemesh11/autotasker/internal/tools"
)

const telegramMessageLimit = 4000

const telegramHelp = `Send me a request and I will plan and run it, e.g.
  "summarize my unread mail"
Commands:
  /jobs - list scheduled jobs
  /schedule <when> | <request> - e.g. /schedule every day at 9am | send me 2 dsa questions`

type telegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramGateway serves inbound chat requests and doubles as a Notifier
// for a configured chat.
type TelegramGateway struct {
	bot        telegramBot
	handler    Handler
	notifyChat int64
	allowed    map[int64]bool

	stopOnce sync.Once
}

// NewTelegramGateway connects to the bot API. allowedChats restricts who may
// issue requests; empty allows everyone.
func NewTelegramGateway(token string, notifyChat int64, allowedChats []int64, handler Handler) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("[telegram] authorized on account %s", bot.Self.UserName)
	return newTelegramGateway(bot, notifyChat, allowedChats, handler), nil
}

func newTelegramGateway(bot telegramBot, notifyChat int64, allowedChats []int64, handler Handler) *TelegramGateway {
	tg := &TelegramGateway{
		bot:        bot,
		handler:    handler,
		notifyChat: notifyChat,
	}
	if len(allowedChats) > 0 {
		tg.allowed = make(map[int64]bool, len(allowedChats))
		for _, id := range allowedChats {
			tg.allowed[id] = true
		}
	}
	return tg
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	if tg.handler == nil {
		return errors.New("telegram gateway has no handler")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			tg.Stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			chatID := update.Message.Chat.ID
			if tg.allowed != nil && !tg.allowed[chatID] {
				log.Printf("[telegram] ignoring message from chat %d", chatID)
				continue
			}
			reply := tg.handle(ctx, update.Message.Text)
			if err := tg.Send(strconv.FormatInt(chatID, 10), reply); err != nil {
				log.Printf("[telegram] reply to %d failed: %v", chatID, err)
			}
		}
	}
}

// handle turns one inbound message into the reply text.
func (tg *TelegramGateway) handle(ctx context.Context, text string) string {
	text = strings.TrimSpace(text)
	cmd, args, _ := strings.Cut(text, " ")
	// "/jobs@SomeBot" in group chats
	cmd, _, _ = strings.Cut(cmd, "@")

	switch strings.ToLower(cmd) {
	case "":
		return telegramHelp
	case "/start", "/help":
		return telegramHelp
	case "/jobs":
		return tg.listJobs(ctx)
	case "/schedule":
		return tg.schedule(ctx, args)
	}
	if strings.HasPrefix(cmd, "/") {
		return fmt.Sprintf("Unknown command %s.\n\n%s", cmd, telegramHelp)
	}

	log.Printf("[telegram] request: %s", text)
	st := tg.handler.RunOnce(ctx, text)
	if st == nil {
		return "Something went wrong, no result was produced."
	}
	_, body := agent.BuildReport(st)
	return agent.OutcomeSummary(st) + "\n\n" + body
}

func (tg *TelegramGateway) listJobs(ctx context.Context) string {
	jobs, err := tg.handler.ListJobs(ctx)
	if err != nil {
		return "Could not list jobs: " + err.Error()
	}
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}
	var b strings.Builder
	for _, j := range jobs {
		state := "active"
		if j.Paused {
			state = "paused"
		}
		fmt.Fprintf(&b, "%s  %s (%s, %s)\n", j.ID[:min(8, len(j.ID))], j.Name, j.Description, state)
		if !j.NextFire.IsZero() && !j.Paused {
			fmt.Fprintf(&b, "    next: %s\n", j.NextFire.Format("Mon Jan 2 15:04"))
		}
	}
	return b.String()
}

func (tg *TelegramGateway) schedule(ctx context.Context, args string) string {
	phrase, request, ok := strings.Cut(args, "|")
	phrase, request = strings.TrimSpace(phrase), strings.TrimSpace(request)
	if !ok || phrase == "" || request == "" {
		return "Usage: /schedule <when> | <request>"
	}
	id, err := tg.handler.ScheduleNatural(ctx, request, phrase, "")
	if err != nil {
		return "Could not schedule: " + err.Error()
	}
	return fmt.Sprintf("Scheduled job %s (%s): %s", id, phrase, request)
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	// plain text: reports carry identifiers like question_gen_0 that
	// Markdown would reject
	for _, part := range chunk(text, telegramMessageLimit) {
		if _, err := tg.bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.stopOnce.Do(tg.bot.StopReceivingUpdates)
	return nil
}

// Deliver sends a report to the configured notification chat.
func (tg *TelegramGateway) Deliver(ctx context.Context, subject, body string) (tools.ExecutionResult, error) {
	if tg.notifyChat == 0 {
		return tools.Failure(errors.New("telegram: no notification chat configured")), nil
	}
	if err := tg.Send(strconv.FormatInt(tg.notifyChat, 10), subject+"\n\n"+body); err != nil {
		return tools.Failure(fmt.Errorf("telegram: %w", err)), nil
	}
	return tools.ExecutionResult{Success: true, Content: fmt.Sprintf("sent to telegram chat %d", tg.notifyChat)}, nil
}
