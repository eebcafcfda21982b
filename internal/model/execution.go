package model

import (
	"fmt"
	"strings"
	"time"
)

// Language identifies one of the two runtimes a snippet can run on.
type Language string

const (
	Python     Language = "python"
	JavaScript Language = "javascript"
)

// ParseLanguage accepts the tags used in documentation markup ("python",
// "py", "javascript", "js") and returns the canonical Language.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python", "py":
		return Python, nil
	case "javascript", "js":
		return JavaScript, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// ExecutionResult is what one run produced: captured output text or an error
// message, never both. Build it with Success or Failure.
//
// A nil *ExecutionResult means the snippet has not been run yet.
type ExecutionResult struct {
	Language Language      `json:"language"`
	OK       bool          `json:"ok"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Success records captured output. Empty output is still a success.
func Success(lang Language, output string, d time.Duration) *ExecutionResult {
	return &ExecutionResult{Language: lang, OK: true, Output: output, Duration: d}
}

// Failure records an error message. An empty message is replaced so that a
// failed result always carries text to show.
func Failure(lang Language, message string, d time.Duration) *ExecutionResult {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("%s execution failed", lang)
	}
	return &ExecutionResult{Language: lang, OK: false, Error: message, Duration: d}
}
