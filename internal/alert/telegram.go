package alert

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

const telegramAPI = "https://api.telegram.org/bot%s/sendMessage"

// Telegram sends incident notifications via the Telegram Bot API.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		token:  cfg.BotToken,
		chatID: cfg.ChatID,
		client: &http.Client{},
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(incident models.Incident) error {
	return t.send(t.formatIncident(incident))
}

func (t *Telegram) SendRaw(message string) error {
	return t.send(message)
}

func (t *Telegram) Test() error {
	return t.send("🛡️ <b>RansomGuard</b> — Test notification\n\nIf you see this, the Telegram sink is connected!")
}

func (t *Telegram) send(text string) error {
	apiURL := fmt.Sprintf(telegramAPI, t.token)

	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("parse_mode", "HTML")
	data.Set("text", text)

	resp, err := t.client.PostForm(apiURL, data)
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func (t *Telegram) formatIncident(incident models.Incident) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>RansomGuard — %s</b>\n\n", emoji(incident.Risk), incident.Risk))
	if incident.Path != "" {
		b.WriteString(fmt.Sprintf("<code>%s</code>\n", incident.Path))
	}
	if incident.Details != "" {
		b.WriteString(incident.Details)
	}
	return b.String()
}
