// Package prompt assembles grounded chat prompts from history and retrieved passages.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"cyberchat-go/internal/config"
	"cyberchat-go/internal/model"
	"cyberchat-go/pkg/log"
)

// ErrPromptAssembly is returned when the human template cannot be filled.
var ErrPromptAssembly = errors.New("prompt assembly failure")

// Prompt is the result of one Build call. Citations are display-only and never part of Messages.
type Prompt struct {
	Messages  []model.ChatMessage
	Citations []string
}

// Assembler builds prompts. It is stateless and safe for concurrent use.
type Assembler struct {
	persona         string
	template        string
	replayCitations bool
	maxHistoryTurns int
	maxPromptChars  int
}

// NewAssembler creates an Assembler from cfg, falling back to the default persona and template.
func NewAssembler(cfg config.PromptConfig) (*Assembler, error) {
	a := &Assembler{
		persona:         cfg.Persona,
		template:        cfg.HumanTemplate,
		replayCitations: cfg.ReplayCitations,
		maxHistoryTurns: cfg.MaxHistoryTurns,
		maxPromptChars:  cfg.MaxPromptChars,
	}
	if strings.TrimSpace(a.persona) == "" {
		a.persona = DefaultPersona
	}
	if strings.TrimSpace(a.template) == "" {
		a.template = DefaultHumanTemplate
	}
	if err := checkTemplate(a.template); err != nil {
		return nil, err
	}
	return a, nil
}

func checkTemplate(tmpl string) error {
	for _, p := range []string{queryPlaceholder, contextPlaceholder} {
		if !strings.Contains(tmpl, p) {
			return fmt.Errorf("%w: human template is missing %s", ErrPromptAssembly, p)
		}
	}
	return nil
}

// Build assembles the prompt for query. history holds the turns that precede the current query.
//
// The result always starts with exactly one system message. Past turns follow in order as
// alternating user/assistant messages; a user turn with no assistant reply is left out.
// The last message is the current query wrapped with the retrieved context.
func (a *Assembler) Build(history []model.Turn, query string, matches []model.RetrievalMatch) (*Prompt, error) {
	if err := checkTemplate(a.template); err != nil {
		return nil, err
	}

	current := model.ChatMessage{
		Role:    model.RoleUser,
		Content: strings.NewReplacer(queryPlaceholder, query, contextPlaceholder, FormatContext(matches)).Replace(a.template),
	}

	exchanges := a.exchanges(history)
	if a.maxHistoryTurns > 0 && len(exchanges) > a.maxHistoryTurns {
		exchanges = exchanges[len(exchanges)-a.maxHistoryTurns:]
	}
	if a.maxPromptChars > 0 {
		fixed := utf8.RuneCountInString(a.persona) + utf8.RuneCountInString(current.Content)
		for len(exchanges) > 0 && fixed+exchangesSize(exchanges) > a.maxPromptChars {
			exchanges = exchanges[1:]
		}
		if fixed > a.maxPromptChars {
			log.Warnf("[PromptAssembler] prompt exceeds max_prompt_chars without history: %d > %d", fixed, a.maxPromptChars)
		}
	}

	messages := make([]model.ChatMessage, 0, 2+2*len(exchanges))
	messages = append(messages, model.ChatMessage{Role: model.RoleSystem, Content: a.persona})
	for _, ex := range exchanges {
		messages = append(messages, ex[0], ex[1])
	}
	messages = append(messages, current)

	return &Prompt{Messages: messages, Citations: CollectCitations(matches)}, nil
}

// exchanges pairs each user turn with the assistant turn answering it.
func (a *Assembler) exchanges(history []model.Turn) [][2]model.ChatMessage {
	var out [][2]model.ChatMessage
	for i := 0; i < len(history); i++ {
		t := history[i]
		if t.Role != model.RoleUser || i+1 >= len(history) || history[i+1].Role != model.RoleAssistant {
			continue
		}
		reply := history[i+1]
		text := reply.Text
		if !a.replayCitations && reply.Annotation != "" {
			text = strings.TrimSuffix(text, reply.Annotation)
		}
		out = append(out, [2]model.ChatMessage{
			{Role: model.RoleUser, Content: t.Text},
			{Role: model.RoleAssistant, Content: text},
		})
		i++
	}
	return out
}

func exchangesSize(exchanges [][2]model.ChatMessage) int {
	n := 0
	for _, ex := range exchanges {
		n += utf8.RuneCountInString(ex[0].Content) + utf8.RuneCountInString(ex[1].Content)
	}
	return n
}

// FormatContext concatenates matches in ranking order, one snippet block each.
func FormatContext(matches []model.RetrievalMatch) string {
	var b strings.Builder
	for _, m := range matches {
		b.WriteString("Snippet from: ")
		b.WriteString(m.Title)
		b.WriteString("\n")
		b.WriteString(m.Passage)
		b.WriteString("\n\n")
	}
	return b.String()
}

// CollectCitations returns the distinct source URLs of matches in order of first appearance.
func CollectCitations(matches []model.RetrievalMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	citations := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.SourceURL]; ok {
			continue
		}
		seen[m.SourceURL] = struct{}{}
		citations = append(citations, m.SourceURL)
	}
	return citations
}

// Annotation renders citations as the suffix appended to an assistant reply.
// It is empty when there are no citations.
func Annotation(citations []string) string {
	if len(citations) == 0 {
		return ""
	}
	links := make([]string, len(citations))
	for i, u := range citations {
		links[i] = fmt.Sprintf("[%s](%s)", u, u)
	}
	return "\n\nSource(s): " + strings.Join(links, ", ")
}
