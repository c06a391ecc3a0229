// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy screens questions for secrets and personal data before
// they are sent to a model.
//
// Classification patterns are embedded in the binary from patterns.yaml.
// Each pattern carries a confidence; only findings at or above the
// configured minimum block a question.
package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns is the embedded classification file.
//
//go:embed patterns.yaml
var Patterns []byte

// Public is returned by Classify when nothing matches.
const Public = "public"

// ErrSensitiveContent is matched by every *ViolationError.
var ErrSensitiveContent = errors.New("policy: question contains sensitive data")

// ConfidenceLevel is how likely a pattern match is a true positive.
type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

func (c ConfidenceLevel) rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	default:
		return 0
	}
}

// UnmarshalYAML rejects unknown confidence levels.
func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	level := ConfidenceLevel(s)
	if level.rank() == 0 {
		return fmt.Errorf("invalid confidence %q", s)
	}
	*c = level
	return nil
}

// Config configures screening.
type Config struct {
	// Disabled turns screening off.
	Disabled bool `json:"disabled" yaml:"disabled"`

	// MinConfidence is the lowest confidence that blocks a question.
	MinConfidence ConfidenceLevel `json:"min_confidence" yaml:"min_confidence" validate:"oneof=low medium high"`
}

// DefaultConfig blocks medium and high confidence findings.
func DefaultConfig() Config {
	return Config{MinConfidence: Medium}
}

type classificationFile struct {
	Classifications []Classification `yaml:"classifications"`
}

// Classification groups patterns under one data class.
type Classification struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

// Pattern is one detection rule.
type Pattern struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Regex       string          `yaml:"regex"`
	Confidence  ConfidenceLevel `yaml:"confidence"`

	compiled *regexp.Regexp
}

// Finding is one pattern match. The matched text itself is never kept.
type Finding struct {
	Line           int             `json:"line"`
	Classification string          `json:"classification"`
	PatternID      string          `json:"pattern_id"`
	Description    string          `json:"description"`
	Confidence     ConfidenceLevel `json:"confidence"`
}

// ViolationError reports the findings that blocked a question.
type ViolationError struct {
	Findings []Finding
}

func (e *ViolationError) Error() string {
	ids := make([]string, 0, len(e.Findings))
	seen := make(map[string]bool)
	for _, f := range e.Findings {
		if !seen[f.PatternID] {
			seen[f.PatternID] = true
			ids = append(ids, f.PatternID)
		}
	}
	return fmt.Sprintf("%s (%s)", ErrSensitiveContent.Error(), strings.Join(ids, ", "))
}

// Unwrap returns ErrSensitiveContent.
func (e *ViolationError) Unwrap() error {
	return ErrSensitiveContent
}

// Engine matches text against the loaded classifications.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Engine struct {
	classifications []Classification
	minConfidence   ConfidenceLevel
}

// New builds an engine from the embedded patterns.
func New(cfg Config) (*Engine, error) {
	return NewFromYAML(Patterns, cfg)
}

// NewFromYAML builds an engine from a classification file.
//
// Description:
//
//	Unmarshals the file, compiles every regex and sorts classifications
//	from highest to lowest priority.
//
// Outputs:
//   - *Engine: Ready to scan.
//   - error: Malformed YAML, an invalid regex or an invalid MinConfidence.
func NewFromYAML(data []byte, cfg Config) (*Engine, error) {
	if cfg.MinConfidence == "" {
		cfg.MinConfidence = Medium
	}
	if cfg.MinConfidence.rank() == 0 {
		return nil, fmt.Errorf("policy: invalid min confidence %q", cfg.MinConfidence)
	}

	var file classificationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("policy: unmarshal patterns: %w", err)
	}

	for i := range file.Classifications {
		for j := range file.Classifications[i].Patterns {
			p := &file.Classifications[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("policy: compile %s: %w", p.ID, err)
			}
			p.compiled = re
		}
	}

	sort.SliceStable(file.Classifications, func(i, j int) bool {
		return file.Classifications[i].Priority > file.Classifications[j].Priority
	})

	return &Engine{classifications: file.Classifications, minConfidence: cfg.MinConfidence}, nil
}

// Classifications returns the loaded classifications in priority order.
func (e *Engine) Classifications() []Classification {
	return e.classifications
}

// Classify returns the name of the highest priority classification with any
// match in text, or Public.
func (e *Engine) Classify(text string) string {
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			if p.compiled.MatchString(text) {
				return c.Name
			}
		}
	}
	return Public
}

// Scan reports every pattern that matches each line of text.
func (e *Engine) Scan(text string) []Finding {
	var findings []Finding
	for n, line := range strings.Split(text, "\n") {
		for _, c := range e.classifications {
			for _, p := range c.Patterns {
				if p.compiled.MatchString(line) {
					findings = append(findings, Finding{
						Line:           n + 1,
						Classification: c.Name,
						PatternID:      p.ID,
						Description:    p.Description,
						Confidence:     p.Confidence,
					})
				}
			}
		}
	}
	return findings
}

// Check returns a *ViolationError when text has findings at or above the
// minimum confidence.
func (e *Engine) Check(text string) error {
	var blocking []Finding
	for _, f := range e.Scan(text) {
		if f.Confidence.rank() >= e.minConfidence.rank() {
			blocking = append(blocking, f)
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	return &ViolationError{Findings: blocking}
}
