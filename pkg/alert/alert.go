// Package alert delivers operator notifications for consolidation incidents:
// embedder circuit-breaker trips and exhausted resolve retries.
package alert

import (
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/soundprediction/consolidato/pkg/config"
)

// Alerter sends one operator notification.
type Alerter interface {
	Alert(subject, message string) error
}

// EmailAlerter implements Alerter over SMTP. Repeated alerts with the same
// subject are suppressed within a cooldown window, since a single bad
// consolidation run can exhaust retries on every candidate of a source.
type EmailAlerter struct {
	cfg      config.AlertConfig
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewEmailAlerter creates an email alerter with a five minute per-subject
// cooldown.
func NewEmailAlerter(cfg config.AlertConfig) *EmailAlerter {
	return &EmailAlerter{
		cfg:      cfg,
		cooldown: 5 * time.Minute,
		lastSent: make(map[string]time.Time),
	}
}

// Alert sends an email with the given subject and message unless the same
// subject fired within the cooldown window.
func (a *EmailAlerter) Alert(subject, message string) error {
	if !a.cfg.Enabled {
		return nil
	}
	if !a.shouldSend(subject) {
		return nil
	}

	// Anonymous relays are common for internal SMTP; only authenticate when
	// credentials are configured.
	var auth smtp.Auth
	if a.cfg.Username != "" {
		auth = smtp.PlainAuth("", a.cfg.Username, a.cfg.Password, a.cfg.SMTPHost)
	}

	to := a.cfg.To
	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: [consolidato] %s\r\n"+
		"\r\n"+
		"%s\r\n", strings.Join(to, ","), subject, message))

	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, a.cfg.From, to, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

func (a *EmailAlerter) shouldSend(subject string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if last, ok := a.lastSent[subject]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.lastSent[subject] = now
	return true
}

// NoOpAlerter discards alerts; used when alerting is disabled.
type NoOpAlerter struct{}

func (n *NoOpAlerter) Alert(subject, message string) error {
	return nil
}
