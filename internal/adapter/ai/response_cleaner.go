package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ResponseCleaner normalizes malformed LLM output into parseable JSON.
// Models wrap JSON in markdown fences, prepend prose, or emit trailing
// commas; the cleaner strips all of that before callers unmarshal.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSON extracts and repairs the first JSON value (object or array)
// found in the response. It returns an error when nothing parseable remains.
func (rc *ResponseCleaner) CleanJSON(response string) (string, error) {
	response = rc.removeMarkdownBlocks(response)
	response = rc.extractJSON(response)
	if rc.IsValidJSON(response) {
		return response, nil
	}
	response = rc.fixCommonJSONIssues(response)
	if !rc.IsValidJSON(response) {
		return "", fmt.Errorf("response is not valid JSON after cleaning")
	}
	return response, nil
}

func (rc *ResponseCleaner) removeMarkdownBlocks(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSON pulls the first balanced JSON object or array out of mixed content.
func (rc *ResponseCleaner) extractJSON(response string) string {
	objStart := strings.Index(response, "{")
	arrStart := strings.Index(response, "[")
	start := objStart
	open, closeCh := byte('{'), byte('}')
	if arrStart != -1 && (objStart == -1 || arrStart < objStart) {
		start = arrStart
		open, closeCh = '[', ']'
	}
	if start == -1 {
		return response
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response[start:]
}

func (rc *ResponseCleaner) fixCommonJSONIssues(response string) string {
	// trailing commas
	response = regexp.MustCompile(`,(\s*[}\]])`).ReplaceAllString(response, "$1")
	// unquoted keys
	response = regexp.MustCompile(`([{,]\s*)(\w+)\s*:`).ReplaceAllString(response, `$1"$2":`)
	return response
}

// IsValidJSON checks if a string is valid JSON.
func (rc *ResponseCleaner) IsValidJSON(response string) bool {
	var tmp any
	return json.Unmarshal([]byte(response), &tmp) == nil
}
