package answer

import (
	"strings"

	"github.com/efebarandurmaz/sift/internal/chunker"
)

// NoInfo is the sentinel a map call returns when its chunk is irrelevant.
const NoInfo = "NO_INFO"

const (
	DefaultParallelism     = 5
	DefaultMaxFindings     = 10
	DefaultMaxOutputTokens = 2000
	DefaultTopK            = 20
	// ChatTopK is the retrieval depth of the interactive chat entry point.
	ChatTopK = 8

	FindingSeparator = "\n\n"
	ContextSeparator = "\n---\n"
)

// IsNoInfo reports whether a map result is the no-information sentinel.
// Case, surrounding whitespace, quotes and punctuation are ignored because
// models echo the sentinel loosely.
func IsNoInfo(s string) bool {
	return strings.EqualFold(strings.Trim(s, noInfoCutset), NoInfo)
}

const noInfoCutset = " \t\r\n\"'`.,;:!?*"

// RelevantFindings drops sentinel and blank results, keeping chunk order.
func RelevantFindings(results []string) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		r = strings.TrimSpace(r)
		if r == "" || IsNoInfo(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// CheckBudget fails with a *BudgetError when findings exceed limit.
func CheckBudget(findings, limit int) error {
	if findings > limit {
		return &BudgetError{Findings: findings, Limit: limit}
	}
	return nil
}

// JoinFindings concatenates findings for the reduce prompt.
func JoinFindings(findings []string) string {
	return strings.Join(findings, FindingSeparator)
}

// JoinContext concatenates retrieved chunks in the order given.
func JoinContext(chunks []chunker.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, ContextSeparator)
}
