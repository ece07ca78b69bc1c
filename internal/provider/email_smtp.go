package provider

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/basilakis/kai-delivery/internal/domain"
	"github.com/google/uuid"
)

const smtpDialTimeout = 10 * time.Second

var _ Provider = (*SMTPProvider)(nil)

// SMTPProvider delivers email through a plain SMTP relay with STARTTLS.
type SMTPProvider struct {
	host     string
	port     int
	username string
	password string
	from     string

	// sendMail is swappable in tests; defaults to the real SMTP exchange.
	sendMail func(ctx context.Context, to string, rfc822 []byte) error
}

func NewSMTPProvider(host string, port int, username, password, from string) (*SMTPProvider, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("%w: smtp host is required", domain.ErrConfiguration)
	}
	if port <= 0 {
		return nil, fmt.Errorf("%w: smtp port is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("%w: sender address is required", domain.ErrMissingSender)
	}

	p := &SMTPProvider{
		host:     strings.TrimSpace(host),
		port:     port,
		username: username,
		password: password,
		from:     strings.TrimSpace(from),
	}
	p.sendMail = p.exchange

	return p, nil
}

func (p *SMTPProvider) Name() string { return "smtp" }

// Verify dials the relay and quits. Used at initialization so missing
// credentials surface at startup instead of on the first delivery.
func (p *SMTPProvider) Verify(ctx context.Context) error {
	addr := net.JoinHostPort(p.host, fmt.Sprintf("%d", p.port))

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: smtp relay unreachable at %s: %v", domain.ErrConfiguration, addr, err)
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: smtp handshake failed: %v", domain.ErrConfiguration, err)
	}
	return client.Quit()
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) ([]DeliveryReceipt, error) {
	if p == nil || p.sendMail == nil {
		return nil, &ProviderError{
			Message: "smtp provider is not initialized",
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
		body := p.buildMessage(to, msg.Subject, msg.Body)

		if err := p.sendMail(ctx, to, body); err != nil {
			return receipts, &ProviderError{
				Message: fmt.Sprintf("smtp send to %s failed", to),
				Class:   domain.ErrorClassTransport,
				Cause:   err,
			}
		}

		receipts = append(receipts, DeliveryReceipt{
			MessageID: "smtp-" + uuid.NewString(),
			Recipient: to,
		})
	}

	return receipts, nil
}

func (p *SMTPProvider) buildMessage(to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func (p *SMTPProvider) exchange(ctx context.Context, to string, rfc822 []byte) error {
	addr := net.JoinHostPort(p.host, fmt.Sprintf("%d", p.port))

	dialer := &net.Dialer{Timeout: smtpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(nil); err != nil {
			return err
		}
	}

	if p.username != "" && p.password != "" {
		auth := smtp.PlainAuth("", p.username, p.password, p.host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(p.from); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(rfc822); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}
