// Package security implements the static risk scan applied to script source
// before it is stored and again before every run.
//
// The scan is a lint, not a sandbox. It matches known command shapes in the
// source text and is trivially bypassed by string building, encoding or
// aliasing. It catches careless destructive commands; it does not stop a
// hostile author. A LOW result means "flagged low-risk", never "safe to run".
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// DefaultMaxSize is the default cap on encoded source size in bytes
const DefaultMaxSize = 1_000_000

// Config configures a Classifier
type Config struct {
	MaxSize       int
	ExtraPatterns []PatternSpec
}

// Assessment is the outcome of one classification
type Assessment struct {
	Safe     bool            `json:"safe"`
	Warnings []string        `json:"warnings"`
	Level    model.RiskLevel `json:"risk_level"`
}

// Snapshot converts the assessment into the record annotation
func (a Assessment) Snapshot(validated bool) model.SecurityInfo {
	return model.SecurityInfo{
		RiskLevel: a.Level,
		Warnings:  append([]string{}, a.Warnings...),
		Validated: validated,
	}
}

// Permitted applies the store/run policy: LOW and MEDIUM pass, HIGH passes
// only when allowHigh is set, CRITICAL never passes
func (a Assessment) Permitted(allowHigh bool) bool {
	if a.Level == model.RiskCritical {
		return false
	}
	return a.Safe || (allowHigh && a.Level == model.RiskHigh)
}

// Classifier scans script source for dangerous and forbidden commands
type Classifier struct {
	maxSize   int
	patterns  []Pattern
	forbidden []Pattern
}

// NewClassifier compiles a classifier with the built-in rules plus any extra
// HIGH tier patterns
func NewClassifier(cfg Config) (*Classifier, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	patterns := make([]Pattern, 0, len(advisoryPatterns)+len(dangerousPatterns)+len(cfg.ExtraPatterns))
	patterns = append(patterns, advisoryPatterns...)
	patterns = append(patterns, dangerousPatterns...)
	for _, spec := range cfg.ExtraPatterns {
		expr, err := regexp.Compile(`(?im)` + spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %q: %w", spec.Pattern, err)
		}
		desc := spec.Description
		if desc == "" {
			desc = spec.Pattern
		}
		patterns = append(patterns, Pattern{Expr: expr, Description: desc, Level: model.RiskHigh})
	}

	return &Classifier{
		maxSize:   maxSize,
		patterns:  patterns,
		forbidden: forbiddenCommands,
	}, nil
}

// Default returns a classifier with the built-in rules and size cap
func Default() *Classifier {
	c, _ := NewClassifier(Config{})
	return c
}

// MaxSize returns the configured size cap
func (c *Classifier) MaxSize() int {
	return c.maxSize
}

// Classify scans source. Size and encoding failures short-circuit as
// CRITICAL; otherwise every match of every rule is reported.
func (c *Classifier) Classify(source string) Assessment {
	if size := len(source); size > c.maxSize {
		return Assessment{
			Level:    model.RiskCritical,
			Warnings: []string{fmt.Sprintf("[CRITICAL] Script too large (%d bytes, max %d)", size, c.maxSize)},
		}
	}
	if !utf8.ValidString(source) {
		return Assessment{
			Level:    model.RiskCritical,
			Warnings: []string{"[CRITICAL] Invalid encoding: source is not valid UTF-8"},
		}
	}

	level := model.RiskLow
	warnings := []string{}

	for _, p := range c.patterns {
		for _, match := range p.Expr.FindAllString(source, -1) {
			warnings = append(warnings, fmt.Sprintf("[%s] %s: %s", p.Level, p.Description, strings.TrimSpace(match)))
			level = level.Max(p.Level)
		}
	}

	for _, p := range c.forbidden {
		if match := p.Expr.FindString(source); match != "" {
			warnings = append(warnings, fmt.Sprintf("[%s] Forbidden command: %s (%s)", model.RiskCritical, p.Description, strings.TrimSpace(match)))
			level = model.RiskCritical
		}
	}

	return Assessment{
		Safe:     !level.AtLeast(model.RiskHigh),
		Warnings: warnings,
		Level:    level,
	}
}

// Stats describes the scanned source
type Stats struct {
	Lines     int            `json:"lines"`
	SizeBytes int            `json:"size_bytes"`
	Language  model.Language `json:"language"`
}

// Analysis is the full report shown to an author before saving
type Analysis struct {
	Assessment
	Stats          Stats  `json:"stats"`
	Recommendation string `json:"recommendation"`
}

const (
	RecommendationOK     = "OK"
	RecommendationReview = "REVIEW_REQUIRED"
)

// Analyze classifies source and attaches size statistics
func (c *Classifier) Analyze(source string, lang model.Language) Analysis {
	a := c.Classify(source)
	rec := RecommendationOK
	if !a.Safe {
		rec = RecommendationReview
	}
	return Analysis{
		Assessment: a,
		Stats: Stats{
			Lines:     strings.Count(source, "\n") + 1,
			SizeBytes: len(source),
			Language:  lang,
		},
		Recommendation: rec,
	}
}
