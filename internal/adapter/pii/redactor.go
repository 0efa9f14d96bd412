package pii

import (
	"log/slog"
	"strings"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks sensitive values inside flow event payloads before they are stored.
type Redactor struct {
	fieldsToRedact map[string]struct{} // lower-cased key names
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor for the given key names. Matching is case-insensitive.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToLower(strings.TrimSpace(field))
		if field != "" {
			fieldSet[field] = struct{}{}
		}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Redact returns a copy of data with sensitive keys masked at any depth,
// and whether anything was masked. The input map is never modified.
func (r *Redactor) Redact(data map[string]any) (map[string]any, bool) {
	if r == nil || len(r.fieldsToRedact) == 0 || len(data) == 0 {
		return data, false
	}
	out, redacted := r.redactMap(data)
	if redacted {
		r.logger.Debug("redacted sensitive fields from flow event data")
	}
	return out, redacted
}

func (r *Redactor) redactMap(m map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(m))
	redacted := false
	for k, v := range m {
		if _, ok := r.fieldsToRedact[strings.ToLower(k)]; ok {
			out[k] = RedactedPlaceholder
			redacted = true
			continue
		}
		nv, changed := r.redactValue(v)
		out[k] = nv
		redacted = redacted || changed
	}
	return out, redacted
}

func (r *Redactor) redactValue(v any) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return r.redactMap(val)
	case []any:
		out := make([]any, len(val))
		redacted := false
		for i, item := range val {
			nv, changed := r.redactValue(item)
			out[i] = nv
			redacted = redacted || changed
		}
		return out, redacted
	}
	return v, false
}
