package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a completion holds no JSON object.
var ErrNoJSON = errors.New("completion contains no JSON object")

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// StripCodeFence removes a surrounding ``` or ```json fence.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimSpace(s[len("```json"):])
	}
	if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(s[3:])
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(s[:len(s)-3])
	}
	return s
}

// DecodeJSON finds the outermost JSON object in a completion and decodes it into v.
func DecodeJSON(completion string, v any) error {
	match := jsonObject.FindString(StripCodeFence(completion))
	if match == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}
