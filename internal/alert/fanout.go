package alert

import (
	"fmt"
	"log/slog"

	"github.com/fullexpi/ransomguard/internal/config"
	"github.com/fullexpi/ransomguard/pkg/models"
)

// FanOut dispatches to every enabled sink, mirroring the teacher's
// daemon fanning an event out to every configured notifier rather than
// picking one channel.
type FanOut []Sink

// FromConfig builds a FanOut from every enabled channel in cfg. alertTo
// is the SMTP recipient (spec.md §6's alert_email setting, live-updatable
// and therefore not itself part of AlertsConfig).
func FromConfig(cfg config.AlertsConfig, alertTo string) FanOut {
	var sinks FanOut
	if cfg.SMTP.Enabled && alertTo != "" {
		sinks = append(sinks, NewSMTPSink(cfg.SMTP, alertTo))
	}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, NewTelegram(cfg.Telegram))
	}
	if cfg.Ntfy.Enabled {
		sinks = append(sinks, NewNtfy(cfg.Ntfy))
	}
	if cfg.Discord.Enabled {
		sinks = append(sinks, NewDiscord(cfg.Discord))
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, NewWebhook(cfg.Webhook))
	}
	return sinks
}

func (f FanOut) Name() string {
	return fmt.Sprintf("fanout(%d sinks)", len(f))
}

// Send delivers incident to every sink, logging (not returning) the
// failure of any individual one so a down channel never blocks the rest.
func (f FanOut) Send(incident models.Incident) error {
	for _, s := range f {
		if err := s.Send(incident); err != nil {
			slog.Error("alert dispatch failed", "sink", s.Name(), "error", err)
		}
	}
	return nil
}

func (f FanOut) SendRaw(message string) error {
	for _, s := range f {
		if err := s.SendRaw(message); err != nil {
			slog.Error("alert dispatch failed", "sink", s.Name(), "error", err)
		}
	}
	return nil
}

// Test tests every sink, returning the first error encountered (but
// still attempting all of them) so `test-alert` can report every
// channel's status.
func (f FanOut) Test() error {
	var firstErr error
	for _, s := range f {
		if err := s.Test(); err != nil {
			slog.Error("sink test failed", "sink", s.Name(), "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", s.Name(), err)
			}
		}
	}
	return firstErr
}
