package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSender appends outgoing mail to a local log file. Used alongside the
// real sender when LOG_EMAILS is set, mainly during development.
type FileSender struct {
	path string
}

// NewFileSender creates a FileSender, ensuring the target directory exists.
func NewFileSender(path string) (Sender, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("email log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for email log %q: %w", path, err)
	}
	return &FileSender{path: path}, nil
}

// Send appends the raw message to the log file.
func (s *FileSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open email log file: %w", err)
	}
	defer file.Close()

	entry := fmt.Sprintf("--- %s To: %v Subject: %s ---\n%s\n---\n\n",
		time.Now().Format(time.RFC3339), to, subject, rawMessage)
	if _, err := file.WriteString(entry); err != nil {
		return fmt.Errorf("failed to write email to log file: %w", err)
	}
	return nil
}
