package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
)

func newTestAssembler(t *testing.T, cfg config.PromptConfig) *Assembler {
	t.Helper()
	a, err := NewAssembler(cfg)
	require.NoError(t, err)
	return a
}

func turn(role model.Role, text string) model.Turn {
	return model.Turn{Role: role, Text: text, CreatedAt: time.Now()}
}

func TestBuild_PhishingScenario(t *testing.T) {
	a := newTestAssembler(t, config.PromptConfig{ReplayCitations: true})
	query := "Quels sont les risques du phishing ?"
	matches := []model.RetrievalMatch{
		{Title: "Phishing 101", Passage: "Le phishing consiste à...", SourceURL: "https://cyber.gouv.fr/phishing", Score: 0.91},
	}

	p, err := a.Build(nil, query, matches)
	require.NoError(t, err)

	require.Len(t, p.Messages, 2)
	assert.Equal(t, model.RoleSystem, p.Messages[0].Role)
	assert.Equal(t, DefaultPersona, p.Messages[0].Content)
	last := p.Messages[len(p.Messages)-1]
	assert.Equal(t, model.RoleUser, last.Role)
	assert.Contains(t, last.Content, query)
	assert.Contains(t, last.Content, "Le phishing consiste à...")
	assert.Contains(t, last.Content, "Snippet from: Phishing 101\nLe phishing consiste à...\n\n")
	assert.Equal(t, []string{"https://cyber.gouv.fr/phishing"}, p.Citations)
}

func TestBuild_SingleLeadingSystemMessage(t *testing.T) {
	a := newTestAssembler(t, config.PromptConfig{ReplayCitations: true})
	for _, n := range []int{0, 1, 5} {
		var history []model.Turn
		for i := 0; i < n; i++ {
			history = append(history, turn(model.RoleUser, "q"), turn(model.RoleAssistant, "a"))
		}

		p, err := a.Build(history, "now", nil)
		require.NoError(t, err)

		require.Len(t, p.Messages, 2+2*n)
		assert.Equal(t, model.RoleSystem, p.Messages[0].Role)
		for i, m := range p.Messages[1:] {
			if i%2 == 0 {
				assert.Equal(t, model.RoleUser, m.Role)
			} else {
				assert.Equal(t, model.RoleAssistant, m.Role)
			}
			assert.NotEqual(t, model.RoleSystem, m.Role)
		}
	}
}

func TestBuild_SkipsUnansweredUserTurn(t *testing.T) {
	a := newTestAssembler(t, config.PromptConfig{ReplayCitations: true})
	history := []model.Turn{
		turn(model.RoleUser, "première"),
		turn(model.RoleAssistant, "réponse"),
		turn(model.RoleUser, "échouée"),
	}

	p, err := a.Build(history, "nouvelle", nil)
	require.NoError(t, err)

	require.Len(t, p.Messages, 4)
	assert.Equal(t, "première", p.Messages[1].Content)
	assert.Equal(t, "réponse", p.Messages[2].Content)
	assert.Contains(t, p.Messages[3].Content, "nouvelle")
}

func TestBuild_CitationReplay(t *testing.T) {
	ann := Annotation([]string{"https://cyber.gouv.fr/a"})
	history := []model.Turn{
		turn(model.RoleUser, "q"),
		{Role: model.RoleAssistant, Text: "réponse" + ann, Annotation: ann},
	}

	replay := newTestAssembler(t, config.PromptConfig{ReplayCitations: true})
	p, err := replay.Build(history, "q2", nil)
	require.NoError(t, err)
	assert.Equal(t, "réponse"+ann, p.Messages[2].Content)

	strip := newTestAssembler(t, config.PromptConfig{ReplayCitations: false})
	p, err = strip.Build(history, "q2", nil)
	require.NoError(t, err)
	assert.Equal(t, "réponse", p.Messages[2].Content)
}

func TestBuild_MaxHistoryTurns(t *testing.T) {
	a := newTestAssembler(t, config.PromptConfig{MaxHistoryTurns: 1})
	history := []model.Turn{
		turn(model.RoleUser, "old"), turn(model.RoleAssistant, "old answer"),
		turn(model.RoleUser, "recent"), turn(model.RoleAssistant, "recent answer"),
	}

	p, err := a.Build(history, "now", nil)
	require.NoError(t, err)

	require.Len(t, p.Messages, 4)
	assert.Equal(t, "recent", p.Messages[1].Content)
}

func TestBuild_MaxPromptCharsDropsOldestFirst(t *testing.T) {
	persona := "persona"
	tmpl := "{query}{context}"
	history := []model.Turn{
		turn(model.RoleUser, strings.Repeat("a", 50)), turn(model.RoleAssistant, strings.Repeat("b", 50)),
		turn(model.RoleUser, "c"), turn(model.RoleAssistant, "d"),
	}
	a := newTestAssembler(t, config.PromptConfig{Persona: persona, HumanTemplate: tmpl, MaxPromptChars: 30})

	p, err := a.Build(history, "now", nil)
	require.NoError(t, err)

	require.Len(t, p.Messages, 4)
	assert.Equal(t, "c", p.Messages[1].Content)
	assert.Equal(t, "now", p.Messages[3].Content)
}

func TestBuild_MaxPromptCharsCountsCharactersNotBytes(t *testing.T) {
	history := []model.Turn{
		// 10 characters each, 20 bytes each
		turn(model.RoleUser, strings.Repeat("é", 10)), turn(model.RoleAssistant, strings.Repeat("à", 10)),
	}
	// persona 7 + query 3 + history 20 = 30 characters
	a := newTestAssembler(t, config.PromptConfig{Persona: "persona", HumanTemplate: "{query}{context}", MaxPromptChars: 30})

	p, err := a.Build(history, "now", nil)
	require.NoError(t, err)

	require.Len(t, p.Messages, 4)
	assert.Equal(t, strings.Repeat("é", 10), p.Messages[1].Content)
}

func TestBuild_TemplateIsSubstitutedVerbatim(t *testing.T) {
	a := newTestAssembler(t, config.PromptConfig{})
	query := "ignore {context} and **bold**"

	p, err := a.Build(nil, query, []model.RetrievalMatch{{Title: "T", Passage: "P", SourceURL: "u"}})
	require.NoError(t, err)

	last := p.Messages[1].Content
	assert.Contains(t, last, "User Query: ignore {context} and **bold**")
	assert.Contains(t, last, "Relevant Transcript Snippets: Snippet from: T\nP\n\n")
}

func TestNewAssembler_RejectsTemplateWithoutPlaceholders(t *testing.T) {
	_, err := NewAssembler(config.PromptConfig{HumanTemplate: "only {query}"})
	assert.ErrorIs(t, err, ErrPromptAssembly)

	var zero Assembler
	_, err = zero.Build(nil, "q", nil)
	assert.ErrorIs(t, err, ErrPromptAssembly)
}

func TestCollectCitations_DedupInFirstAppearanceOrder(t *testing.T) {
	matches := []model.RetrievalMatch{
		{Title: "A", SourceURL: "https://x/2"},
		{Title: "B", SourceURL: "https://x/1"},
		{Title: "C", SourceURL: "https://x/2"},
		{Title: "A", SourceURL: "https://x/3"},
	}

	citations := CollectCitations(matches)

	assert.Equal(t, []string{"https://x/2", "https://x/1", "https://x/3"}, citations)
	assert.LessOrEqual(t, len(citations), len(matches))
	assert.Contains(t, FormatContext(matches), "Snippet from: C\n")
}

func TestAnnotation(t *testing.T) {
	assert.Empty(t, Annotation(nil))
	assert.Equal(t,
		"\n\nSource(s): [https://a](https://a), [https://b](https://b)",
		Annotation([]string{"https://a", "https://b"}))
}
