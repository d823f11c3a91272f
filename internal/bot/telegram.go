package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"tradepilot/internal/domain"

	tele "gopkg.in/telebot.v3"
)

type RegimeSource interface {
	Current() domain.MarketRegime
}

type OperationLister interface {
	ListBySubscriber(ctx context.Context, subscriberID int64, limit int) ([]domain.Operation, error)
}

// Notifier pushes dispatch alerts to the operator chat. Zero value is a
// no-op so dispatch can run without Telegram configured.
type Notifier struct {
	bot    *tele.Bot
	chatID int64
}

// Notify sends best effort; a Telegram outage must never stall dispatch.
func (n *Notifier) Notify(text string) {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return
	}
	go func() {
		if _, err := n.bot.Send(tele.ChatID(n.chatID), text); err != nil {
			log.Printf("telegram notify failed: %v", err)
		}
	}()
}

// StartTelegramBot wires the operator commands and returns a Notifier for
// dispatch alerts. Returns a no-op Notifier when TELEGRAM_BOT_TOKEN is
// unset.
func StartTelegramBot(regime RegimeSource, operations OperationLister) *Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return &Notifier{}
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/regime", func(c tele.Context) error {
		if regime == nil {
			return c.Send("regime service not available")
		}
		r := regime.Current()
		return c.Send(fmt.Sprintf(
			"Market regime\nScore: %d\nAllowed: %s\nFetched: %s",
			r.Score, r.AllowedDirection, r.FetchedAt.Format(time.RFC3339),
		))
	})

	b.Handle("/open", func(c tele.Context) error {
		args := c.Args()
		if operations == nil || len(args) == 0 {
			return c.Send("Usage: /open <subscriber-id>")
		}
		subscriberID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return c.Send("Usage: /open <subscriber-id>")
		}
		ops, err := operations.ListBySubscriber(context.Background(), subscriberID, 50)
		if err != nil {
			return c.Send(fmt.Sprintf("Error listing operations: %v", err))
		}
		msg := fmt.Sprintf("Open positions for subscriber %d:\n", subscriberID)
		count := 0
		for _, op := range ops {
			if op.Status != domain.OperationOpen {
				continue
			}
			count++
			msg += fmt.Sprintf("%s %s qty %.4f @ %.2f\n", op.Symbol, op.Side, op.Quantity, op.EntryPrice)
		}
		if count == 0 {
			return c.Send(fmt.Sprintf("No open positions for subscriber %d", subscriberID))
		}
		return c.Send(msg)
	})

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			chatID = parsed
		} else {
			log.Printf("invalid TELEGRAM_CHAT_ID %q, push alerts disabled", raw)
		}
	}

	log.Println("Telegram bot started")
	go b.Start()
	return &Notifier{bot: b, chatID: chatID}
}
