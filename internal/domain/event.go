package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// EventType identifies the kind of domain event, e.g. "material.created".
type EventType string

var eventTypePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)

func (t EventType) String() string { return string(t) }

func (t EventType) IsValid() bool {
	return eventTypePattern.MatchString(string(t))
}

func ParseEventTypeFromString(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return t, nil
}

// Event is a domain occurrence pushed to subscribed delivery targets.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, e.Type)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: event data is required", ErrValidation)
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("%w: event data must be valid JSON", ErrValidation)
	}
	return nil
}

// CanonicalPayload serializes the event into the exact byte form that gets
// signed and posted. The same bytes must be used for signing and transport so
// receivers can verify signatures.
func (e *Event) CanonicalPayload() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	return payload, nil
}

// PayloadDigest fingerprints a payload for the delivery log so audits do not
// require storing raw bodies.
func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
