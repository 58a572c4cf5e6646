// Package reply turns raw model text into typed values. Sanitation is a single
// step (trim, strip code fences, NFC-normalize); anything that still fails to
// parse or violates its schema is reported as a failed Result and never repaired.
package reply

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
)

var (
	openFence  = regexp.MustCompile("^```[A-Za-z]*[ \t]*\r?\n?")
	closeFence = regexp.MustCompile("\r?\n?```$")
)

// Clean trims the reply and removes a surrounding ``` / ```json fence.
func Clean(text string) string {
	s := strings.TrimSpace(norm.NFC.String(text))
	if strings.HasPrefix(s, "```") {
		s = openFence.ReplaceAllString(s, "")
		s = closeFence.ReplaceAllString(s, "")
		s = strings.TrimSpace(s)
	}
	return s
}

// Result carries either a parsed value or the reason parsing failed.
type Result[T any] struct {
	Value  T
	Reason string
}

// OK reports whether the value was parsed.
func (r Result[T]) OK() bool {
	return r.Reason == ""
}

// Ok wraps a parsed value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail builds a failed result.
func Fail[T any](format string, args ...any) Result[T] {
	return Result[T]{Reason: fmt.Sprintf(format, args...)}
}

// Schema is a compiled response-shape contract.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Name returns the schema's contract name.
func (s *Schema) Name() string {
	return s.name
}

// CompileSchema compiles a JSON Schema (draft 2020-12) document.
func CompileSchema(name, src string) (*Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://reqflow.schemas.local/reply/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("reply: load schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("reply: compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustSchema is CompileSchema for package-level contract declarations.
func MustSchema(name, src string) *Schema {
	s, err := CompileSchema(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode cleans text, checks it against schema (when non-nil), and decodes it into T.
func Decode[T any](text string, schema *Schema) Result[T] {
	cleaned := Clean(text)
	if cleaned == "" {
		return Fail[T]("empty response")
	}
	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return Fail[T]("invalid JSON: %v", err)
	}
	if schema != nil {
		if err := schema.compiled.Validate(doc); err != nil {
			return Fail[T]("response violates %s contract: %v", schema.name, err)
		}
	}
	var out T
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return Fail[T]("decode %T: %v", out, err)
	}
	return Ok(out)
}

// Answer is a canonicalized yes/no reply.
type Answer int

const (
	AnswerOther Answer = iota
	AnswerYes
	AnswerNo
)

// YesNo maps a reply to yes/no, case-insensitive; anything else is AnswerOther.
func YesNo(text string) Answer {
	s := strings.ToLower(strings.TrimRight(Clean(text), ".! "))
	switch s {
	case "yes":
		return AnswerYes
	case "no":
		return AnswerNo
	default:
		return AnswerOther
	}
}

// IsNone reports whether the reply is the literal "None".
func IsNone(text string) bool {
	s := strings.Trim(Clean(text), "\"'. ")
	return strings.EqualFold(s, "none")
}

// Choice returns the option the sanitized reply names exactly. Near misses
// (other case, punctuation, quotes) name no option.
func Choice(text string, options []string) (string, bool) {
	s := Clean(text)
	for _, o := range options {
		if s == o {
			return o, true
		}
	}
	return "", false
}
