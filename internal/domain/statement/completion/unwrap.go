package completion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/FACorreiaa/statement-ingest/internal/domain/statement/schema"
)

var fenced = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\r?\n(.*?)\r?\n?```$")

// ErrNotAnObject is returned when the payload is valid JSON but not an object.
var ErrNotAnObject = errors.New("model response is not a JSON object")

// StripFences removes a single enclosing markdown code fence, if any.
func StripFences(content string) string {
	content = strings.TrimSpace(content)
	if m := fenced.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return content
}

// ModelError is the error object a model returns inside a {status: "error"}
// envelope.
type ModelError struct {
	Code    string
	Message string
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model reported %s: %s", e.Code, e.Message)
}

// Payload is the parsed model response.
type Payload struct {
	Data   map[string]any
	Status string
	Error  *ModelError
}

// ParsePayload decodes the unfenced response text. A top-level "data" key is
// treated as a {status, data, error} envelope and unwrapped.
func ParsePayload(text string) (Payload, error) {
	doc, err := schema.DecodeJSON([]byte(StripFences(text)))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to parse model response: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Payload{}, ErrNotAnObject
	}

	inner, enveloped := obj["data"]
	if !enveloped {
		return Payload{Data: obj}, nil
	}

	p := Payload{}
	p.Status, _ = obj["status"].(string)
	if e, ok := obj["error"].(map[string]any); ok {
		p.Error = &ModelError{}
		p.Error.Code, _ = e["code"].(string)
		p.Error.Message, _ = e["message"].(string)
	}

	switch data := inner.(type) {
	case map[string]any:
		p.Data = data
	case nil:
		if p.Error == nil {
			return Payload{}, fmt.Errorf("%w: envelope has no data and no error", ErrNotAnObject)
		}
	default:
		return Payload{}, fmt.Errorf("%w: envelope data is %T", ErrNotAnObject, inner)
	}

	if p.Status == "error" && p.Error == nil {
		p.Error = &ModelError{Code: "PARSE_ERROR", Message: "model reported an error without details"}
	}
	return p, nil
}

// Failed reports whether the model answered with an error envelope.
func (p Payload) Failed() bool {
	return p.Status == "error" || (p.Error != nil && p.Data == nil)
}
