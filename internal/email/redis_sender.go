package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dennismathu/moomarket/internal/config"
)

// RedisSender implements the Sender interface by storing emails in Redis.
// Integration tests read the keys back to assert on delivered mail.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{
		client: client,
		cfg:    cfg,
	}
}

// Send stores a JSON representation of the email in Redis under a key
// derived from the primary recipient and a category guessed from the
// subject line.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	category := "other"
	lower := strings.ToLower(subject)
	switch {
	case strings.Contains(lower, "suggested"), strings.Contains(lower, "updated"):
		category = "inspection_updated"
	case strings.Contains(lower, "viewing request"):
		category = "inspection_requested"
	case strings.Contains(lower, "confirmed"):
		category = "inspection_confirmed"
	case strings.Contains(lower, "reminder"):
		category = "inspection_reminder"
	case strings.Contains(lower, "verification"):
		category = "verification_outcome"
	}

	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	emailData := map[string]interface{}{
		"to":       strings.Join(to, ", "),
		"from":     s.cfg.SmtpFromAddress,
		"subject":  subject,
		"body":     string(rawMessage),
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"category": category,
	}

	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := fmt.Sprintf("mockemail:%s:%s", primaryTo, category)
	ttl := 5 * time.Minute

	if err := s.client.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	log.Printf("Mock email stored in Redis key '%s' (To: %s, Subject: %s)", key, strings.Join(to, ", "), subject)
	return nil
}
