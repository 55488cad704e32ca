package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/reservations_backend/models"
)

// TelegramNotifier posts events to a Telegram chat through the bot API.
type TelegramNotifier struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

func NewTelegramNotifier() (*TelegramNotifier, error) {
	token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	chatID := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID"))
	if token == "" || chatID == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID not set")
	}
	baseURL := strings.TrimSpace(os.Getenv("TELEGRAM_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		chatID:  chatID,
		http:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func reservationLine(rec models.Reservation) string {
	line := fmt.Sprintf("#%d | ₪%s | %s", rec.ReservationNumber, rec.GrossAmount.StringFixed(2), rec.EventDate.Format("02/01/2006"))
	if rec.EventTime != nil {
		line += " " + *rec.EventTime
	}
	if rec.GuestCount > 0 {
		line += fmt.Sprintf(" | %d guests", rec.GuestCount)
	}
	if rec.Cancelled() {
		line += " | CANCELLED"
	}
	return line
}

func formatEvent(event Event) string {
	switch event.Kind {
	case EventKindNew:
		return "New reservation\n" + reservationLine(*event.Reservation)
	case EventKindUpdate:
		var b strings.Builder
		b.WriteString("Reservation updated\n")
		b.WriteString(reservationLine(*event.Reservation))
		for _, c := range event.Changes {
			b.WriteString(fmt.Sprintf("\n%s: %s → %s", c.Field, c.Old, c.New))
		}
		return b.String()
	case EventKindDigest:
		var b strings.Builder
		b.WriteString("Reservations for today and tomorrow")
		for _, rec := range event.Digest {
			b.WriteString("\n" + reservationLine(rec))
		}
		return b.String()
	}
	return ""
}

func (n *TelegramNotifier) Send(ctx context.Context, event Event) error {
	text := formatEvent(event)
	if text == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
