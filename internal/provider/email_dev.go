package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/google/uuid"
)

var _ Provider = (*DevMailboxProvider)(nil)

// DevMailboxProvider writes each email to a local directory instead of
// sending it. It stands in for a real email provider in non-production
// environments where no relay is reachable.
type DevMailboxProvider struct {
	dir  string
	from string
	now  func() time.Time
}

func NewDevMailboxProvider(dir, from string) (*DevMailboxProvider, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: mailbox directory is required", domain.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create mailbox directory %s: %v", domain.ErrConfiguration, dir, err)
	}

	return &DevMailboxProvider{
		dir:  dir,
		from: strings.TrimSpace(from),
		now:  time.Now,
	}, nil
}

func (p *DevMailboxProvider) Name() string { return "dev" }

func (p *DevMailboxProvider) Verify(ctx context.Context) error {
	if p == nil || p.dir == "" {
		return domain.ErrNotInitialized
	}
	info, err := os.Stat(p.dir)
	if err != nil {
		return fmt.Errorf("%w: mailbox directory %s: %v", domain.ErrConfiguration, p.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", domain.ErrConfiguration, p.dir)
	}
	return nil
}

func (p *DevMailboxProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil || p.dir == "" {
		return nil, &ProviderError{
			Message: "dev mailbox provider is not initialized",
			Class:   domain.ErrorClassConfiguration,
		}
	}
	if len(msg.Recipients) == 0 {
		return nil, &ProviderError{
			Message: "at least one recipient is required",
			Class:   domain.ErrorClassValidation,
		}
	}

	receipts := make([]DeliveryReceipt, 0, len(msg.Recipients))
	for _, recipient := range msg.Recipients {
		to := strings.TrimSpace(recipient)
		messageID := "dev-" + uuid.NewString()

		var b strings.Builder
		fmt.Fprintf(&b, "Message-ID: %s\n", messageID)
		fmt.Fprintf(&b, "Date: %s\n", p.now().UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "From: %s\n", p.from)
		fmt.Fprintf(&b, "To: %s\n", to)
		fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
		b.WriteString("\n")
		b.WriteString(msg.Body)
		b.WriteString("\n")

		path := filepath.Join(p.dir, messageID+".eml")
		if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
			return receipts, &ProviderError{
				Message: fmt.Sprintf("write mailbox file %s", path),
				Class:   domain.ErrorClassTransport,
				Cause:   err,
			}
		}

		receipts = append(receipts, DeliveryReceipt{
			MessageID: messageID,
			Recipient: to,
		})
	}

	return receipts, nil
}
