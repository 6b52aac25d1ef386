package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedLanguage is returned when a language has no extension or
// execution mapping
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language identifies the interpreter family of a script
type Language string

const (
	LanguagePowerShell Language = "powershell"
	LanguageBatch      Language = "batch"
	LanguagePython     Language = "python"
)

var languageExtensions = map[Language]string{
	LanguagePowerShell: ".ps1",
	LanguageBatch:      ".bat",
	LanguagePython:     ".py",
}

// Languages returns the supported languages in a stable order
func Languages() []Language {
	return []Language{LanguagePowerShell, LanguageBatch, LanguagePython}
}

// ParseLanguage normalizes a user supplied language name
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := languageExtensions[lang]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
	return lang, nil
}

// Extension returns the source file extension for the language
func (l Language) Extension() (string, error) {
	ext, ok := languageExtensions[l]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(l))
	}
	return ext, nil
}

// LanguageForExtension maps a file extension back to its language
func LanguageForExtension(ext string) (Language, bool) {
	ext = strings.ToLower(ext)
	for lang, e := range languageExtensions {
		if e == ext {
			return lang, true
		}
	}
	return "", false
}

// RiskLevel is the outcome tier of a static scan
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether r is as severe as other or more
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// Max returns the more severe of the two levels
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// SecurityInfo is the snapshot of the most recent validation
type SecurityInfo struct {
	RiskLevel RiskLevel `json:"risk_level"`
	Warnings  []string  `json:"warnings"`
	Validated bool      `json:"validated"`
}

// ScriptRecord is the persisted metadata of a stored script
type ScriptRecord struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Language       Language     `json:"language"`
	SourcePath     string       `json:"file"`
	Tags           []string     `json:"tags"`
	Version        int          `json:"version"`
	CreatedAt      time.Time    `json:"created"`
	ModifiedAt     time.Time    `json:"modified"`
	RunCount       int          `json:"runs"`
	LastExecutedAt *time.Time   `json:"last_execution,omitempty"`
	Security       SecurityInfo `json:"security"`
}

// Clone returns a deep copy so callers never alias index state
func (r *ScriptRecord) Clone() *ScriptRecord {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	c.Security.Warnings = append([]string(nil), r.Security.Warnings...)
	if r.LastExecutedAt != nil {
		t := *r.LastExecutedAt
		c.LastExecutedAt = &t
	}
	return &c
}

// Script is a record together with its loaded source body
type Script struct {
	ScriptRecord
	Source string `json:"code"`
}
