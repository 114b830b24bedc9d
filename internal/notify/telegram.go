package notify

import (
	"fmt"
	"strings"
	"time"

	"comer/internal/domain"
	"comer/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const dateLayout = "02 Jan 2006"

// Subscriber is the part of the event bus the notifier needs.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// TelegramNotifier posts reservation changes to the owners' chat.
type TelegramNotifier struct {
	sender domain.TelegramSender
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, chatID int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger}
}

// NewBotAPI connects to Telegram with the bot token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

// Register subscribes the notifier to booking events.
func (n *TelegramNotifier) Register(bus Subscriber) {
	bus.Subscribe(events.EventBookingReserved, n.handle)
	bus.Subscribe(events.EventBookingCancelled, n.handle)
}

func (n *TelegramNotifier) handle(e *events.Event) error {
	p, err := events.Decode[events.BookingEventPayload](e)
	if err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}

	msg := tgbotapi.NewMessage(n.chatID, bookingMessage(e.Type, p))
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	n.logger.Debug().
		Str("event", e.Type).
		Str("booking_id", p.BookingID).
		Msg("Owner notified")
	return nil
}

func bookingMessage(eventType string, p events.BookingEventPayload) string {
	var b strings.Builder
	switch eventType {
	case events.EventBookingReserved:
		b.WriteString("🆕 New booking\n\n")
	case events.EventBookingCancelled:
		b.WriteString("❌ Booking cancelled\n\n")
	default:
		b.WriteString(eventType + "\n\n")
	}

	title := p.ExperienceTitle
	if title == "" {
		title = p.ExperienceID
	}
	fmt.Fprintf(&b, "🏷 Experience: %s\n", title)
	fmt.Fprintf(&b, "📅 Date: %s, %s - %s\n", p.Date.In(time.UTC).Format(dateLayout), p.StartTime, p.EndTime)
	guest := p.UserEmail
	if guest == "" {
		guest = p.UserID
	}
	fmt.Fprintf(&b, "👤 Guest: %s\n", guest)
	fmt.Fprintf(&b, "💶 Price: %.2f %s\n", p.Price, p.Currency)
	fmt.Fprintf(&b, "🆔 Booking: %s", p.BookingID)
	return b.String()
}
