package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// Discord sends incident notifications via a Discord webhook.
type Discord struct {
	webhookURL string
	client     *http.Client
}

func NewDiscord(cfg config.DiscordConfig) *Discord {
	return &Discord{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{},
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(incident models.Incident) error {
	color := 0x3498db
	switch incident.Risk.Severity() {
	case "warning":
		color = 0xf39c12
	case "critical":
		color = 0xe74c3c
	}

	fields := []map[string]interface{}{}
	if incident.Path != "" {
		fields = append(fields, map[string]interface{}{
			"name": "Path", "value": incident.Path, "inline": false,
		})
	}

	embed := map[string]interface{}{
		"title":       fmt.Sprintf("%s RansomGuard — %s", emoji(incident.Risk), incident.Risk),
		"description": incident.Details,
		"color":       color,
		"fields":      fields,
	}

	payload := map[string]interface{}{
		"embeds": []interface{}{embed},
	}

	return d.sendJSON(payload)
}

func (d *Discord) SendRaw(message string) error {
	payload := map[string]string{"content": message}
	return d.sendJSON(payload)
}

func (d *Discord) Test() error {
	return d.SendRaw("🛡️ **RansomGuard** — Test notification\n\nIf you see this, the Discord sink is connected!")
}

func (d *Discord) sendJSON(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("discord send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status %d", resp.StatusCode)
	}
	return nil
}
