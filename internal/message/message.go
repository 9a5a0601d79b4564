// Package message holds the outbound message builder and its validation rules.
//
// A Message is mutable while it is being composed and becomes a send
// candidate once Validate succeeds. Every setter validates its own input and
// leaves the message untouched on failure.
package message

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/util"
)

// MaxTextLength is the maximum number of characters (code points) accepted
// for the text body.
const MaxTextLength = 1600

// Message is an outbound SMS or chat message. The zero value is ready to use.
type Message struct {
	recipients []string
	seen       map[string]struct{}
	text       string
	templateID string
	variables  map[string]any
}

// New returns an empty message.
func New() *Message {
	return &Message{}
}

// AddRecipients trims and validates every number before merging any of them.
// A single invalid entry fails the whole call and the recipient set is left
// as it was. Duplicates collapse onto their first appearance.
func (m *Message) AddRecipients(numbers ...string) error {
	normalized := make([]string, 0, len(numbers))
	for _, raw := range numbers {
		number, err := util.NormalizePhone(raw)
		if err != nil {
			return errs.InvalidValue("to", strings.TrimSpace(raw), "invalid phone number format")
		}
		normalized = append(normalized, number)
	}

	if m.seen == nil {
		m.seen = make(map[string]struct{}, len(normalized))
	}
	for _, number := range normalized {
		if _, ok := m.seen[number]; ok {
			continue
		}
		m.seen[number] = struct{}{}
		m.recipients = append(m.recipients, number)
	}
	return nil
}

// SetText stores the trimmed text body.
func (m *Message) SetText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errs.Validation("message text cannot be empty")
	}
	if err := util.EnsureMaxRunes("message text", trimmed, MaxTextLength); err != nil {
		return errs.Validation("%v", err)
	}
	m.text = trimmed
	return nil
}

// SetTemplate stores a provider-side template id and its variables. The
// variables are passed through to providers as given; nothing is rendered
// locally.
func (m *Message) SetTemplate(id string, vars map[string]any) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errs.Validation("template id cannot be empty")
	}
	m.templateID = trimmed
	m.variables = copyVars(vars)
	return nil
}

// Validate is the gate every dispatch passes before any network activity.
func (m *Message) Validate() error {
	if len(m.recipients) == 0 {
		return errs.Validation("at least one recipient is required")
	}
	if m.text == "" && m.templateID == "" {
		return errs.Validation("message text or template is required")
	}
	return nil
}

// Recipients returns the recipient numbers in first-appearance order.
func (m *Message) Recipients() []string {
	return append([]string(nil), m.recipients...)
}

// Text returns the text body, or "" when none was set.
func (m *Message) Text() string { return m.text }

// HasText reports whether a text body was set.
func (m *Message) HasText() bool { return m.text != "" }

// TemplateID returns the template id, or "" when none was set.
func (m *Message) TemplateID() string { return m.templateID }

// HasTemplate reports whether a template id was set.
func (m *Message) HasTemplate() bool { return m.templateID != "" }

// Variables returns a copy of the template variables. It is nil when no
// template was set.
func (m *Message) Variables() map[string]any {
	return copyVars(m.variables)
}

// Variable is one template variable in provider parameter order.
type Variable struct {
	Key   string
	Value any
}

// OrderedVariables returns the template variables with numeric keys first in
// ascending numeric order, followed by named keys in lexical order.
func (m *Message) OrderedVariables() []Variable {
	if len(m.variables) == 0 {
		return nil
	}

	type numbered struct {
		n   int
		key string
	}
	var nums []numbered
	var names []string
	for key := range m.variables {
		if n, err := strconv.Atoi(key); err == nil && n >= 0 {
			nums = append(nums, numbered{n: n, key: key})
			continue
		}
		names = append(names, key)
	}
	sort.Slice(nums, func(i, j int) bool {
		if nums[i].n == nums[j].n {
			return nums[i].key < nums[j].key
		}
		return nums[i].n < nums[j].n
	})
	sort.Strings(names)

	out := make([]Variable, 0, len(m.variables))
	for _, num := range nums {
		out = append(out, Variable{Key: num.key, Value: m.variables[num.key]})
	}
	for _, name := range names {
		out = append(out, Variable{Key: name, Value: m.variables[name]})
	}
	return out
}

// Clone returns a copy that shares no mutable state with m.
func (m *Message) Clone() *Message {
	c := &Message{
		recipients: append([]string(nil), m.recipients...),
		text:       m.text,
		templateID: m.templateID,
		variables:  copyVars(m.variables),
	}
	if len(m.seen) > 0 {
		c.seen = make(map[string]struct{}, len(m.seen))
		for k := range m.seen {
			c.seen[k] = struct{}{}
		}
	}
	return c
}

// FormatValue renders a template variable as the text providers receive.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

func copyVars(vars map[string]any) map[string]any {
	if vars == nil {
		return nil
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
