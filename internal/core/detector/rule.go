package detector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the way a detector body is materialized.
type Kind string

const (
	KindPatterns Kind = "patterns"
	KindBuiltin  Kind = "builtin"
	KindPlugin   Kind = "plugin"
)

const maxLineSize = 4 * 1024 * 1024

// Rule is a data-only detector body. Exactly one of Patterns, Builtin or
// Plugin selects how it runs.
type Rule struct {
	Code        string            `yaml:"code"`
	Title       string            `yaml:"title"`
	Description string            `yaml:"description"`
	Detail      string            `yaml:"detail"`
	HasSolution *bool             `yaml:"has_solution"`
	Extensions  []string          `yaml:"extensions"`
	Files       []string          `yaml:"files"`
	Patterns    []string          `yaml:"patterns"`
	MinMatches  int               `yaml:"min_matches"`
	Builtin     string            `yaml:"builtin"`
	Plugin      string            `yaml:"plugin"`
	Params      map[string]string `yaml:"params"`
}

// ParseRule decodes a detector body. Unknown keys are rejected so that a body
// written for another contract fails loudly instead of matching nothing.
func ParseRule(data []byte) (Rule, error) {
	var rule Rule
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rule); err != nil {
		if errors.Is(err, io.EOF) {
			return Rule{}, errors.New("detector body is empty")
		}
		return Rule{}, fmt.Errorf("invalid detector body: %w", err)
	}
	return rule, nil
}

// Kind reports which materialization the rule asks for.
func (r Rule) Kind() Kind {
	switch {
	case r.Builtin != "":
		return KindBuiltin
	case r.Plugin != "":
		return KindPlugin
	default:
		return KindPatterns
	}
}

// WithDefaultCode fills an empty code, used by layouts where the folder name
// is the error code.
func (r Rule) WithDefaultCode(code string) Rule {
	if r.Code == "" {
		r.Code = code
	}
	return r
}

// SolutionAvailable defaults to true.
func (r Rule) SolutionAvailable() bool {
	return r.HasSolution == nil || *r.HasSolution
}

// Validate checks that the body selects exactly one materialization and that
// the fields it needs are present.
func (r Rule) Validate() error {
	selected := 0
	if len(r.Patterns) > 0 {
		selected++
	}
	if r.Builtin != "" {
		selected++
	}
	if r.Plugin != "" {
		selected++
	}
	switch selected {
	case 0:
		return errors.New("detector body defines no patterns, builtin or plugin")
	case 1:
	default:
		return errors.New("detector body must define only one of patterns, builtin or plugin")
	}
	if r.Kind() == KindPlugin {
		return nil
	}
	if !IsErrorCode(r.Code) {
		return fmt.Errorf("invalid error code %q", r.Code)
	}
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title is required")
	}
	if r.MinMatches < 0 {
		return fmt.Errorf("min_matches must not be negative, got %d", r.MinMatches)
	}
	return nil
}

// Report builds the error report for this rule with the given detail.
func (r Rule) Report(detail string) *ErrorReport {
	return &ErrorReport{
		Code:        r.Code,
		Title:       r.Title,
		Detail:      detail,
		HasSolution: r.SolutionAvailable(),
	}
}

// RuleDetector matches a rule's patterns line by line against the log files
// it selects. Matching is case-insensitive.
type RuleDetector struct {
	rule     Rule
	patterns []*regexp.Regexp
}

// NewRuleDetector validates and compiles a pattern rule.
func NewRuleDetector(rule Rule) (*RuleDetector, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if rule.Kind() != KindPatterns {
		return nil, fmt.Errorf("rule %s is a %s detector, not a pattern rule", rule.Code, rule.Kind())
	}

	patterns := make([]*regexp.Regexp, 0, len(rule.Patterns))
	for _, p := range rule.Patterns {
		if strings.TrimSpace(p) == "" {
			return nil, errors.New("empty pattern")
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %s: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &RuleDetector{rule: rule, patterns: patterns}, nil
}

func (d *RuleDetector) Rule() Rule { return d.rule }

// Detect scans the selected files and reports on the first hit, or after
// MinMatches hits when that is set.
func (d *RuleDetector) Detect(ctx context.Context, logs LogDir) (*ErrorReport, error) {
	files, err := logs.Files(d.rule.Extensions, d.rule.Files)
	if err != nil {
		return nil, err
	}

	need := d.rule.MinMatches
	if need == 0 {
		need = 1
	}

	count := 0
	var first match
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, m, err := d.scanFile(ctx, logs, name, need-count)
		if err != nil {
			return nil, err
		}
		if hits > 0 && count == 0 {
			first = m
		}
		count += hits
		if count >= need {
			return d.rule.Report(d.detail(first, count)), nil
		}
	}
	return nil, nil
}

type match struct {
	file    string
	line    int
	text    string
	pattern string
}

func (d *RuleDetector) scanFile(ctx context.Context, logs LogDir, name string, limit int) (int, match, error) {
	f, err := logs.Open(name)
	if err != nil {
		return 0, match{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	hits := 0
	var first match
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, match{}, err
			}
		}
		line := sc.Text()
		for _, re := range d.patterns {
			loc := re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			if hits == 0 {
				first = match{file: name, line: lineNo, text: line[loc[0]:loc[1]], pattern: re.String()}
			}
			hits++
			break
		}
		if hits >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return 0, match{}, fmt.Errorf("read %s: %w", name, err)
	}
	return hits, first, nil
}

func (d *RuleDetector) detail(m match, count int) string {
	if d.rule.Detail != "" {
		return strings.NewReplacer(
			"{file}", m.file,
			"{line}", strconv.Itoa(m.line),
			"{match}", m.text,
			"{count}", strconv.Itoa(count),
		).Replace(d.rule.Detail)
	}
	if count > 1 {
		return fmt.Sprintf("%q found in %s (line %d), %d matching lines", m.text, m.file, m.line, count)
	}
	return fmt.Sprintf("%q found in %s (line %d)", m.text, m.file, m.line)
}
