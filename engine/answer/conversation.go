package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ciudadano-digital/civica/pkg/openai"
)

// Turn is one prior question/answer exchange of a chat session. The session
// store is caller-owned; the engine only reads history and hands back a new
// summary value for the caller to persist.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// DefaultSummaryThreshold is the turn count at which the rolling summary is
// regenerated.
const DefaultSummaryThreshold = 5

// summaryDue reports whether the history is long enough to refresh the
// summary this turn.
func summaryDue(history []Turn, threshold int) bool {
	return threshold > 0 && len(history) >= threshold
}

// summarize produces a fresh summary from the full history. It replaces the
// previous summary rather than merging into it.
func (c *Composer) summarize(ctx context.Context, history []Turn) (string, error) {
	prompt := fmt.Sprintf(`Resume en un párrafo breve la siguiente conversación entre un usuario y un asistente de educación ciudadana. Conserva los temas tratados y los datos importantes. Responde SOLO con el resumen.

%s`, formatHistory(history))

	reply, err := c.chat.Chat(ctx, []openai.Message{{Role: openai.RoleUser, Content: prompt}}, c.opts.Temperature)
	if err != nil {
		return "", fmt.Errorf("answer: summarize: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func formatHistory(history []Turn) string {
	var b strings.Builder
	for _, t := range history {
		fmt.Fprintf(&b, "Usuario: %s\nAsistente: %s\n", t.Question, t.Answer)
	}
	return b.String()
}
