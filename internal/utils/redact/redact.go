// Package redact masks identities before they reach log output.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

// Level defines how much of an identity survives redaction
type Level string

const (
	// LevelNone replaces identities with a fixed marker
	LevelNone Level = "none"
	// LevelHashed replaces identities with a salted short hash
	LevelHashed Level = "hashed"
	// LevelFull performs no redaction
	LevelFull Level = "full"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk-ant-[A-Za-z0-9_-]{8,}|key_[A-Za-z0-9]{8,}|gh[pousr]_[A-Za-z0-9]{20,})`)
)

// Sanitizer hashes emails and API key material with a deployment salt
type Sanitizer struct {
	level Level
	salt  string
}

// NewSanitizer creates a sanitizer; unknown levels behave as hashed.
func NewSanitizer(level Level, salt string) *Sanitizer {
	return &Sanitizer{level: level, salt: salt}
}

// Identity sanitizes a single identity value (email, key name, login)
func (s *Sanitizer) Identity(identity string) string {
	if s == nil || identity == "" {
		return identity
	}
	switch s.level {
	case LevelFull:
		return identity
	case LevelNone:
		return "[REDACTED]"
	default:
		return s.hash(identity)
	}
}

// Text masks emails and key-looking tokens embedded in free text such as
// commit messages or upstream error bodies.
func (s *Sanitizer) Text(input string) string {
	if s == nil {
		return input
	}
	switch s.level {
	case LevelFull:
		return input
	case LevelNone:
		if input == "" {
			return ""
		}
		return "[REDACTED]"
	}
	result := emailPattern.ReplaceAllStringFunc(input, func(match string) string {
		return fmt.Sprintf("[EMAIL:%s]", s.hash(match))
	})
	return apiKeyPattern.ReplaceAllString(result, "[KEY:REDACTED]")
}

func (s *Sanitizer) hash(data string) string {
	h := sha256.New()
	h.Write([]byte(data + s.salt))
	return hex.EncodeToString(h.Sum(nil))[:8]
}
