package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lorebot/lore/internal/index"
	"github.com/lorebot/lore/internal/session"
)

// Default token budgets for prompt assembly. Budgets are measured with the
// same coarse estimate the generation layer uses, so they bound the prompt
// well below real model limits.
const (
	DefaultContextBudget = 3000
	DefaultHistoryBudget = 800
)

// AssemblerConfig configures prompt assembly budgets.
type AssemblerConfig struct {
	// ContextBudget caps the estimated tokens spent on retrieved passages
	// (default: DefaultContextBudget).
	ContextBudget int

	// HistoryBudget caps the estimated tokens spent on conversation history
	// (default: DefaultHistoryBudget).
	HistoryBudget int
}

// Prompt is an assembled generation prompt plus bookkeeping about what made
// it in. Sources holds only the hits whose passages were actually rendered
// into the context, so attribution never cites a passage the model never saw.
type Prompt struct {
	Text            string
	Sources         []index.Result
	PassagesUsed    int
	TurnsUsed       int
	EstimatedTokens int
}

// Assembler builds the generation prompt from the query, the retrieved
// passages, and recent conversation turns.
//
// Passages are added best match first and prefixed with their source; a
// passage that would blow the context budget is skipped whole, never
// truncated mid-passage, and assembly moves on to the next one. History is
// rendered oldest first inside its own budget, dropping the oldest turns
// when it doesn't fit. The query itself is always included.
type Assembler struct {
	contextBudget int
	historyBudget int
}

// NewAssembler creates an assembler with the given budgets. Non-positive
// budgets fall back to the defaults.
func NewAssembler(cfg AssemblerConfig) *Assembler {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.HistoryBudget <= 0 {
		cfg.HistoryBudget = DefaultHistoryBudget
	}
	return &Assembler{
		contextBudget: cfg.ContextBudget,
		historyBudget: cfg.HistoryBudget,
	}
}

// Assemble renders the prompt for one query.
func (a *Assembler) Assemble(query string, hits []index.Result, history []session.Turn) Prompt {
	var b strings.Builder
	b.WriteString("Use ONLY the context below to answer.\n")

	passages, sources := a.renderPassages(hits)
	b.WriteString("\nCONTEXT:\n")
	if passages == "" {
		b.WriteString("(no relevant context found)\n")
	} else {
		b.WriteString(passages)
	}

	turnsUsed := 0
	if rendered, used := a.renderHistory(history); used > 0 {
		b.WriteString("\nCONVERSATION SO FAR:\n")
		b.WriteString(rendered)
		turnsUsed = used
	}

	b.WriteString("\nQUESTION:\n")
	b.WriteString(query)
	b.WriteString("\n\nANSWER:\n")

	text := b.String()
	return Prompt{
		Text:            text,
		Sources:         sources,
		PassagesUsed:    len(sources),
		TurnsUsed:       turnsUsed,
		EstimatedTokens: estimateTokens(text),
	}
}

// renderPassages formats hits in score order, skipping any passage that
// would exceed the remaining context budget. It returns the rendered text
// together with the hits that made it in, in render order.
func (a *Assembler) renderPassages(hits []index.Result) (string, []index.Result) {
	var b strings.Builder
	remaining := a.contextBudget
	var included []index.Result

	for _, hit := range hits {
		block := fmt.Sprintf("[source: %s]\n%s\n\n", hit.Passage.Source, hit.Passage.Text)
		cost := estimateTokens(block)
		if cost > remaining {
			continue
		}
		b.WriteString(block)
		remaining -= cost
		included = append(included, hit)
	}
	return b.String(), included
}

// renderHistory formats the most recent turns that fit the history budget,
// oldest first. Turns are dropped from the oldest end until the rest fit.
func (a *Assembler) renderHistory(history []session.Turn) (string, int) {
	if len(history) == 0 {
		return "", 0
	}

	blocks := make([]string, len(history))
	for i, turn := range history {
		blocks[i] = fmt.Sprintf("User: %s\nAssistant: %s\n", turn.Query, turn.Answer)
	}

	// Walk backwards from the newest turn to find how many fit.
	remaining := a.historyBudget
	start := len(blocks)
	for i := len(blocks) - 1; i >= 0; i-- {
		cost := estimateTokens(blocks[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}
	if start == len(blocks) {
		return "", 0
	}
	return strings.Join(blocks[start:], ""), len(blocks) - start
}

// estimateTokens is a coarse token estimate: roughly two runes per token.
// It only has to be stable and cheap, not exact.
func estimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 2
}
