package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSearchResults caps the number of entries returned by a keyword search.
const MaxSearchResults = 50

// ErrInvalidKind is returned when a kind selector is not recognised.
var ErrInvalidKind = errors.New("invalid log kind")

// Kind identifies the variant of an Entry. KindAll is only valid as a selector.
type Kind string

const (
	KindAll   Kind = "all"
	KindAPI   Kind = "api"
	KindFlow  Kind = "flow"
	KindError Kind = "error"
)

// Kinds lists the concrete entry kinds in their storage order.
var Kinds = []Kind{KindAPI, KindFlow, KindError}

// ParseKind converts a selector string into a Kind. The empty string selects all kinds.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return KindAll, nil
	case "api":
		return KindAPI, nil
	case "flow", "debate-flow":
		return KindFlow, nil
	case "error":
		return KindError, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

// Selects reports whether an entry of kind k is matched by the selector.
func (sel Kind) Selects(k Kind) bool {
	return sel == KindAll || sel == k
}

// Role is the debate participant that issued an API call.
type Role string

const (
	RoleCognito Role = "cognito"
	RoleMuse    Role = "muse"
	RoleOther   Role = "other"
)

// NormalizeRole maps free-form role names onto the known roles.
func NormalizeRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCognito:
		return RoleCognito
	case RoleMuse:
		return RoleMuse
	}
	return RoleOther
}

// Entry is one immutable log record. The concrete types are APICallEntry,
// FlowEventEntry and ErrorEntry.
type Entry interface {
	Kind() Kind
	Time() time.Time
	isEntry()
}

// APICallEntry records one completed call to an external model.
type APICallEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	CallID       string    `json:"callId"`
	Role         Role      `json:"role"`
	Model        string    `json:"model"`
	DurationMs   int64     `json:"durationMs"`
	InputLength  int       `json:"inputLength"`
	OutputLength int       `json:"outputLength"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error,omitempty"`
	Input        string    `json:"input,omitempty"`
	Output       string    `json:"output,omitempty"`
}

// NewAPICallEntry builds an API call entry. Lengths are counted in characters
// and success is derived from callErr.
func NewAPICallEntry(ts time.Time, callID, role, model, input, output string, duration time.Duration, callErr error) APICallEntry {
	if duration < 0 {
		duration = 0
	}
	e := APICallEntry{
		Timestamp:    ts,
		CallID:       callID,
		Role:         NormalizeRole(role),
		Model:        model,
		DurationMs:   duration.Milliseconds(),
		InputLength:  utf8.RuneCountInString(input),
		OutputLength: utf8.RuneCountInString(output),
		Success:      callErr == nil,
		Input:        input,
		Output:       output,
	}
	if callErr != nil {
		e.ErrorMessage = callErr.Error()
		if e.ErrorMessage == "" {
			e.ErrorMessage = "unknown error"
		}
	}
	return e
}

func (e APICallEntry) Kind() Kind      { return KindAPI }
func (e APICallEntry) Time() time.Time { return e.Timestamp }
func (APICallEntry) isEntry()          {}

func (e APICallEntry) MarshalJSON() ([]byte, error) {
	type alias APICallEntry
	return marshalEntry(struct {
		Type Kind `json:"type"`
		alias
	}{KindAPI, alias(e)})
}

// Truncated returns a copy whose input and output text keep at most n characters.
func (e APICallEntry) Truncated(n int) APICallEntry {
	e.Input = truncate(e.Input, n)
	e.Output = truncate(e.Output, n)
	return e
}

func truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// FlowEventEntry records a debate lifecycle marker and its payload.
type FlowEventEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e FlowEventEntry) Kind() Kind      { return KindFlow }
func (e FlowEventEntry) Time() time.Time { return e.Timestamp }
func (FlowEventEntry) isEntry()          {}

func (e FlowEventEntry) MarshalJSON() ([]byte, error) {
	type alias FlowEventEntry
	return marshalEntry(struct {
		Type Kind `json:"type"`
		alias
	}{KindFlow, alias(e)})
}

// ErrorEntry records an error reported by the orchestration layer.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`
	Message   string    `json:"error"`
	Stack     string    `json:"stack,omitempty"`
}

func (e ErrorEntry) Kind() Kind      { return KindError }
func (e ErrorEntry) Time() time.Time { return e.Timestamp }
func (ErrorEntry) isEntry()          {}

func (e ErrorEntry) MarshalJSON() ([]byte, error) {
	type alias ErrorEntry
	return marshalEntry(struct {
		Type Kind `json:"type"`
		alias
	}{KindError, alias(e)})
}

// marshalEntry encodes v without HTML escaping so that stored payloads and
// search matching see the text as it was logged.
func marshalEntry(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Clone returns a copy of e that shares no mutable state with it.
func Clone(e Entry) Entry {
	if f, ok := e.(FlowEventEntry); ok && f.Data != nil {
		f.Data = cloneMap(f.Data)
		return f
	}
	return e
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Matches reports whether the JSON form of e contains keyword, ignoring case.
func Matches(e Entry, keyword string) bool {
	data, err := marshalEntry(e)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(data)), strings.ToLower(keyword))
}
