package file

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/V4T54L/callwatch/internal/domain"
)

// Record delimiters. API call records are wrapped by apiSeparator on both
// sides; error records are terminated by errorSeparator.
var (
	apiSeparator   = strings.Repeat("=", 80)
	errorSeparator = strings.Repeat("=", 50)
)

const (
	labelTimestamp    = "Timestamp:"
	labelCallID       = "Call ID:"
	labelRole         = "Role:"
	labelModel        = "Model:"
	labelDuration     = "Duration:"
	labelSuccess      = "Success:"
	labelError        = "Error:"
	labelInputLength  = "Input Length:"
	labelInput        = "Input:"
	labelOutputLength = "Output Length:"
	labelOutput       = "Output:"

	errorHeader       = "[ERROR]"
	labelContext      = "Context:"
	labelErrorMessage = "Error Message:"
	labelStack        = "Stack Trace:"

	timeLayout = time.RFC3339Nano
)

// singleLine folds a value onto one line so it cannot break record framing.
func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatAPICall(e domain.APICallEntry) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(apiSeparator + "\n")
	fmt.Fprintf(&b, "%s %s\n", labelTimestamp, e.Timestamp.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "%s %s\n", labelCallID, singleLine(e.CallID))
	fmt.Fprintf(&b, "%s %s\n", labelRole, e.Role)
	fmt.Fprintf(&b, "%s %s\n", labelModel, singleLine(e.Model))
	fmt.Fprintf(&b, "%s %dms\n", labelDuration, e.DurationMs)
	fmt.Fprintf(&b, "%s %t\n", labelSuccess, e.Success)
	if !e.Success {
		fmt.Fprintf(&b, "%s %s\n", labelError, singleLine(e.ErrorMessage))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d chars\n", labelInputLength, e.InputLength)
	b.WriteString(labelInput + "\n")
	b.WriteString(e.Input + "\n")
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %d chars\n", labelOutputLength, e.OutputLength)
	b.WriteString(labelOutput + "\n")
	b.WriteString(e.Output + "\n")
	b.WriteString(apiSeparator + "\n\n")
	return b.String()
}

func formatFlowEvent(e domain.FlowEventEntry) (string, error) {
	data := []byte("{}")
	if e.Data != nil {
		var err error
		data, err = json.Marshal(e.Data)
		if err != nil {
			return "", fmt.Errorf("failed to marshal flow event data: %w", err)
		}
	}
	return fmt.Sprintf("[%s] %s: %s\n", e.Timestamp.UTC().Format(timeLayout), singleLine(e.Event), data), nil
}

func formatError(e domain.ErrorEntry) string {
	var b strings.Builder
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", errorHeader, e.Timestamp.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "%s %s\n", labelContext, singleLine(e.Context))
	fmt.Fprintf(&b, "%s %s\n", labelErrorMessage, singleLine(e.Message))
	b.WriteString(labelStack + "\n")
	if e.Stack != "" {
		b.WriteString(strings.TrimRight(e.Stack, "\n") + "\n")
	}
	b.WriteString(errorSeparator + "\n\n")
	return b.String()
}

func labelValue(line, label string) (string, bool) {
	if !strings.HasPrefix(line, label) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, label)), true
}

func parseTime(s string) (time.Time, bool) {
	ts, err := time.Parse(timeLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// leadingInt parses the integer prefix of values such as "120ms" or "11 chars".
func leadingInt(s string) int64 {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// fragments splits file content on sep and drops whitespace-only pieces.
func fragments(content, sep string) []string {
	parts := strings.Split(content, sep)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

type apiSection int

const (
	sectionHeader apiSection = iota
	sectionInput
	sectionOutput
)

// parseAPICalls reconstructs API call entries in file order. Fragments without
// a parseable timestamp are dropped.
func parseAPICalls(content string) []domain.APICallEntry {
	var entries []domain.APICallEntry
	for _, frag := range fragments(content, apiSeparator) {
		if e, ok := parseAPICall(frag); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseAPICall(frag string) (domain.APICallEntry, bool) {
	frag = strings.TrimPrefix(frag, "\n")
	frag = strings.TrimSuffix(frag, "\n")

	var (
		e         domain.APICallEntry
		hasTime   bool
		section   = sectionHeader
		input     []string
		output    []string
		inputDone bool
	)
	for _, line := range strings.Split(frag, "\n") {
		switch section {
		case sectionInput:
			if v, ok := labelValue(line, labelOutputLength); ok {
				e.OutputLength = int(leadingInt(v))
				inputDone = true
				continue
			}
			if inputDone && line == labelOutput {
				section = sectionOutput
				continue
			}
			if !inputDone {
				input = append(input, line)
			}
			continue
		case sectionOutput:
			output = append(output, line)
			continue
		}

		if line == labelInput {
			section = sectionInput
			continue
		}
		if v, ok := labelValue(line, labelTimestamp); ok {
			e.Timestamp, hasTime = parseTime(v)
		} else if v, ok := labelValue(line, labelCallID); ok {
			e.CallID = v
		} else if v, ok := labelValue(line, labelRole); ok {
			e.Role = domain.NormalizeRole(v)
		} else if v, ok := labelValue(line, labelModel); ok {
			e.Model = v
		} else if v, ok := labelValue(line, labelDuration); ok {
			e.DurationMs = leadingInt(v)
		} else if v, ok := labelValue(line, labelSuccess); ok {
			e.Success = v == "true"
		} else if v, ok := labelValue(line, labelError); ok {
			e.ErrorMessage = v
		} else if v, ok := labelValue(line, labelInputLength); ok {
			e.InputLength = int(leadingInt(v))
		} else if v, ok := labelValue(line, labelOutputLength); ok {
			e.OutputLength = int(leadingInt(v))
		}
	}
	if !hasTime {
		return domain.APICallEntry{}, false
	}

	// The input block is followed by one blank spacer line.
	if n := len(input); n > 0 && input[n-1] == "" {
		input = input[:n-1]
	}
	e.Input = strings.Join(input, "\n")
	e.Output = strings.Join(output, "\n")
	if e.Success {
		e.ErrorMessage = ""
	}
	return e, true
}

// parseFlowEvents reconstructs flow events from "[timestamp] event: data" lines.
func parseFlowEvents(content string) []domain.FlowEventEntry {
	var entries []domain.FlowEventEntry
	for _, line := range strings.Split(content, "\n") {
		if e, ok := parseFlowEvent(line); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseFlowEvent(line string) (domain.FlowEventEntry, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "[") {
		return domain.FlowEventEntry{}, false
	}
	tsEnd := strings.Index(line, "] ")
	if tsEnd < 0 {
		return domain.FlowEventEntry{}, false
	}
	ts, ok := parseTime(line[1:tsEnd])
	if !ok {
		return domain.FlowEventEntry{}, false
	}

	e := domain.FlowEventEntry{Timestamp: ts}
	rest := line[tsEnd+2:]
	// Event names may themselves contain ": ", so the data field starts at
	// the first separator followed by a JSON object that parses.
	for i := 0; i < len(rest); {
		j := strings.Index(rest[i:], ": {")
		if j < 0 {
			break
		}
		at := i + j
		var payload map[string]any
		if err := json.Unmarshal([]byte(rest[at+2:]), &payload); err == nil {
			e.Event = rest[:at]
			if len(payload) > 0 {
				e.Data = payload
			}
			return e, true
		}
		i = at + 2
	}

	event, _, found := strings.Cut(rest, ": ")
	if !found {
		event = strings.TrimSuffix(rest, ":")
	}
	e.Event = event
	return e, true
}

// parseErrors reconstructs error entries in file order.
func parseErrors(content string) []domain.ErrorEntry {
	var entries []domain.ErrorEntry
	for _, frag := range fragments(content, errorSeparator) {
		if e, ok := parseError(frag); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

func parseError(frag string) (domain.ErrorEntry, bool) {
	var (
		e       domain.ErrorEntry
		hasTime bool
		inStack bool
		stack   []string
	)
	for _, line := range strings.Split(strings.Trim(frag, "\n"), "\n") {
		if inStack {
			stack = append(stack, line)
			continue
		}
		if v, ok := labelValue(line, errorHeader); ok {
			e.Timestamp, hasTime = parseTime(v)
		} else if v, ok := labelValue(line, labelContext); ok {
			e.Context = v
		} else if v, ok := labelValue(line, labelErrorMessage); ok {
			e.Message = v
		} else if line == labelStack {
			inStack = true
		}
	}
	if !hasTime {
		return domain.ErrorEntry{}, false
	}
	e.Stack = strings.Join(stack, "\n")
	return e, true
}
