package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Snapshot is the wire form of a Message carried by deferred jobs.
type Snapshot struct {
	Recipients []string       `json:"recipients"`
	Text       string         `json:"text,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Snapshot captures the current message content.
func (m *Message) Snapshot() Snapshot {
	return Snapshot{
		Recipients: m.Recipients(),
		Text:       m.text,
		TemplateID: m.templateID,
		Variables:  copyVars(m.variables),
	}
}

// UnmarshalJSON decodes numbers in Variables as json.Number so integer
// template values such as OTP codes keep their exact digits.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var out plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return err
	}
	*s = Snapshot(out)
	return nil
}

// FromSnapshot rebuilds and validates a Message. Every field goes through
// the same setters used when composing, so a tampered snapshot cannot carry
// content the builder would reject.
func FromSnapshot(s Snapshot) (*Message, error) {
	m := New()
	if err := m.AddRecipients(s.Recipients...); err != nil {
		return nil, fmt.Errorf("snapshot recipients: %w", err)
	}
	if s.Text != "" {
		if err := m.SetText(s.Text); err != nil {
			return nil, fmt.Errorf("snapshot text: %w", err)
		}
	}
	if s.TemplateID != "" {
		if err := m.SetTemplate(s.TemplateID, s.Variables); err != nil {
			return nil, fmt.Errorf("snapshot template: %w", err)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
