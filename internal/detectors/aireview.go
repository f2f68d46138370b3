package detectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"maadoctor.app/cli/internal/core/detector"
)

// AIReview sends the ERR and WRN entries of gui.log to a chat model and
// reports what it finds under the rule's code.
const AIReview = "ai-review"

const (
	defaultReviewFile = "gui.log"
	maxPromptEntries  = 15
	reviewSystem      = "You are an expert in analyzing MaaAssistantArknights logs."
)

// Reviewer answers a single prompt. *ai.Client implements it.
type Reviewer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ErrReviewerNotConfigured is returned when a rule uses ai-review but no
// endpoint and key are configured.
var ErrReviewerNotConfigured = errors.New("ai review is not configured, set ai.url and ai.key")

var entryHeader = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\]\[(?:ERR|WRN)\]\[[^\]]*\]`)

// ExtractErrorEntries returns the ERR and WRN entries of a gui.log text in
// order. An entry is its header line plus every following line up to the next
// line that starts with "[".
func ExtractErrorEntries(text string) []string {
	var (
		entries []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			entries = append(entries, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.HasPrefix(line, "[") {
			flush()
			if entryHeader.MatchString(line) {
				current = []string{line}
			}
			continue
		}
		if current != nil {
			current = append(current, line)
		}
	}
	flush()

	for i, e := range entries {
		entries[i] = strings.TrimRight(e, "\n")
	}
	return entries
}

// Dedupe drops repeated entries, keeping first occurrences in order.
func Dedupe(entries []string) []string {
	seen := make(map[string]bool, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// BuildReviewPrompt asks for a JSON verdict over at most 15 distinct entries.
func BuildReviewPrompt(entries []string) string {
	unique := Dedupe(entries)
	sample := unique
	if len(sample) > maxPromptEntries {
		sample = sample[:maxPromptEntries]
	}

	var b strings.Builder
	b.WriteString("Analyze the following MAA (MaaAssistantArknights) log entries, find likely problems and suggest fixes.\n\n")
	b.WriteString("Log format: [timestamp][level][module] message\n")
	b.WriteString("Only ERR and WRN entries are included.\n")
	fmt.Fprintf(&b, "Entries: %d total, %d distinct\n\n", len(entries), len(unique))
	b.WriteString("Entries:\n")
	b.WriteString(strings.Join(sample, "\n"))
	b.WriteString(`

Reply with JSON only, in this shape:
{
  "success": boolean,
  "errors": [{"code": string, "title": string, "detail": string, "has_solution": boolean}],
  "summary": string
}
Group repeated patterns, relate errors to each other and give concrete fixes.
If nothing is clearly wrong, return "success": true with no errors.`)
	return b.String()
}

// ReviewFinding is one problem the model reported.
type ReviewFinding struct {
	Code        string `json:"code"`
	Title       string `json:"title"`
	Detail      string `json:"detail"`
	HasSolution bool   `json:"has_solution"`
}

// ReviewVerdict is the model's JSON answer.
type ReviewVerdict struct {
	Success bool            `json:"success"`
	Errors  []ReviewFinding `json:"errors"`
	Summary string          `json:"summary"`
}

// ParseReviewVerdict decodes the outermost JSON object in reply; models often
// wrap it in prose or a code fence.
func ParseReviewVerdict(reply string) (ReviewVerdict, error) {
	var v ReviewVerdict
	text := reply
	if start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}"); start >= 0 && end > start {
		text = reply[start : end+1]
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return ReviewVerdict{}, fmt.Errorf("unreadable model reply: %w", err)
	}
	return v, nil
}

func newAIReview(reviewer Reviewer) detector.Factory {
	return func(rule detector.Rule) (detector.Detector, error) {
		if reviewer == nil {
			return nil, ErrReviewerNotConfigured
		}
		files := rule.Files
		if len(files) == 0 {
			files = []string{defaultReviewFile}
		}
		return detector.DetectorFunc(func(ctx context.Context, logs detector.LogDir) (*detector.ErrorReport, error) {
			return review(ctx, reviewer, rule, files, logs)
		}), nil
	}
}

func review(ctx context.Context, reviewer Reviewer, rule detector.Rule, files []string, logs detector.LogDir) (*detector.ErrorReport, error) {
	paths, err := logs.Files(extensionsOf(files), files)
	if err != nil {
		return nil, err
	}
	var entries []string
	for _, p := range paths {
		data, err := fs.ReadFile(logs.FS(), p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ExtractErrorEntries(string(data))...)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	reply, err := reviewer.Complete(ctx, reviewSystem, BuildReviewPrompt(entries))
	if err != nil {
		return nil, fmt.Errorf("ai review: %w", err)
	}
	verdict, err := ParseReviewVerdict(reply)
	if err != nil {
		return nil, fmt.Errorf("ai review: %w", err)
	}
	if len(verdict.Errors) == 0 {
		return nil, nil
	}
	return rule.Report(verdict.detail()), nil
}

func (v ReviewVerdict) detail() string {
	parts := make([]string, 0, len(v.Errors)+1)
	if s := strings.TrimSpace(v.Summary); s != "" {
		parts = append(parts, s)
	}
	for _, f := range v.Errors {
		item := strings.TrimSpace(f.Title)
		if d := strings.TrimSpace(f.Detail); d != "" {
			if item != "" {
				item += ": "
			}
			item += d
		}
		if item != "" {
			parts = append(parts, item)
		}
	}
	return strings.Join(parts, "; ")
}
