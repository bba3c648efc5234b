package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// Input is what the upstream producer handed over: either free text or an
// already-structured object. Resolve it once with Detect or DetectValue.
type Input interface {
	isInput()
}

// Text is a free-text tiered report.
type Text string

// Structured is a decoded JSON object holding some subset of the report keys.
type Structured map[string]any

func (Text) isInput()       {}
func (Structured) isInput() {}

// ErrMalformedInput matches every MalformedInputError via errors.Is.
var ErrMalformedInput = eris.New("normalize: malformed input")

const snippetRunes = 120

// MalformedInputError reports a payload that is neither usable text nor a
// JSON object.
type MalformedInputError struct {
	Reason  string
	Snippet string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("normalize: malformed input: %s (payload %q)", e.Reason, e.Snippet)
}

// Is makes errors.Is(err, ErrMalformedInput) hold.
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

func malformed(reason, payload string) error {
	return &MalformedInputError{
		Reason:  reason,
		Snippet: truncate(strings.TrimSpace(payload), snippetRunes),
	}
}

// Detect classifies a raw payload. A payload whose body (after removing a
// markdown code fence) is a JSON object is Structured, as is prose followed
// by a fenced JSON report. Anything else that is non-empty valid UTF-8 is
// Text, JSON scalars included. JSON arrays are rejected.
func Detect(raw string) (Input, error) {
	if !utf8.ValidString(raw) {
		return nil, malformed("payload is not valid UTF-8", strings.ToValidUTF8(raw, "?"))
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, malformed("empty payload", raw)
	}

	body := stripFence(trimmed)
	if body == "" {
		return nil, malformed("empty code block", raw)
	}
	switch body[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil && obj != nil {
			return Structured(obj), nil
		}
	case '[':
		if json.Valid([]byte(body)) {
			return nil, malformed("JSON array where an object was expected", raw)
		}
	}
	if obj, ok := fencedReport(trimmed); ok {
		return obj, nil
	}
	return Text(raw), nil
}

// fencedBlock matches a markdown code block anywhere in a payload.
var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\n(.*?)```")

// fencedReport finds the first code block holding a JSON object with at
// least one report section key. Other objects, such as schema markup in a
// drafts tier, leave the payload as text.
func fencedReport(s string) (Structured, bool) {
	for _, m := range fencedBlock.FindAllStringSubmatch(s, -1) {
		body := strings.TrimSpace(m[1])
		if !strings.HasPrefix(body, "{") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			continue
		}
		for _, sec := range []Section{SectionScorecard, SectionGapAnalysis, SectionRoadmap, SectionDrafts} {
			if _, ok := obj[string(sec)]; ok {
				return Structured(obj), true
			}
		}
	}
	return nil, false
}

// DetectValue classifies an already-decoded JSON value, e.g. the "report"
// field of an HTTP request body.
func DetectValue(v any) (Input, error) {
	switch t := v.(type) {
	case nil:
		return nil, malformed("missing payload", "")
	case Text:
		return Detect(string(t))
	case Structured:
		if t == nil {
			return nil, malformed("missing payload", "")
		}
		return t, nil
	case string:
		return Detect(t)
	case map[string]any:
		if t == nil {
			return nil, malformed("missing payload", "")
		}
		return Structured(t), nil
	default:
		b, _ := json.Marshal(v)
		return nil, malformed(fmt.Sprintf("unsupported payload type %T", v), string(b))
	}
}

// stripFence removes a surrounding markdown code fence such as ```json.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		// Drop the info string ("json", "JSON", ...).
		if lang := strings.TrimSpace(s[:nl]); !strings.ContainsAny(lang, "{[") {
			s = s[nl+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// rawString renders an input for the raw_response preview.
func rawString(in Input) string {
	switch t := in.(type) {
	case Text:
		return string(t)
	case Structured:
		b, err := json.Marshal(map[string]any(t))
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}
