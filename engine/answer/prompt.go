package answer

import (
	"fmt"
	"strings"

	"github.com/ciudadano-digital/civica/pkg/openai"
)

// RefusalMessage is the exact reply when no relevant context exists. It is
// both instructed in the prompt and enforced by a post-generation check.
const RefusalMessage = "No puedo responder."

// followUpMarker opens the trailing block of suggested questions the model is
// instructed to emit.
const followUpMarker = "Preguntas sugeridas:"

const systemPrompt = `Eres Cívica, un asistente de educación ciudadana.
Responde la pregunta del usuario de manera clara y completa usando ÚNICAMENTE el contexto proporcionado.
Si el usuario solo saluda, responde el saludo con cortesía.
Si el contexto está vacío o no guarda relación con la pregunta, responde exactamente: "No puedo responder."
Termina SIEMPRE tu respuesta con una sección "Preguntas sugeridas:" que contenga hasta 3 preguntas formuladas en primera persona, por ejemplo: "¿Cómo puedo participar en mi comunidad?".`

// buildPrompt assembles the chat messages in fixed precedence order:
// policy rules, conversation history, running summary, retrieved context,
// and finally the question.
func buildPrompt(question string, history []Turn, summary string, fragments []string) []openai.Message {
	var b strings.Builder

	if len(history) > 0 {
		b.WriteString("Conversación previa:\n")
		b.WriteString(formatHistory(history))
		b.WriteString("\n")
	}
	if summary != "" {
		fmt.Fprintf(&b, "Resumen de la conversación:\n%s\n\n", summary)
	}

	b.WriteString("Contexto:\n")
	b.WriteString(strings.Join(fragments, "\n\n"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Pregunta:\n%s\n\nRespuesta:", question)

	return []openai.Message{
		{Role: openai.RoleSystem, Content: systemPrompt},
		{Role: openai.RoleUser, Content: b.String()},
	}
}

// parseReply splits the generated text into the answer body and the suggested
// follow-up questions, capped at max.
func parseReply(reply string, max int) (string, []string) {
	body := reply
	var block string

	if i := strings.Index(reply, followUpMarker); i >= 0 {
		body = reply[:i]
		block = reply[i+len(followUpMarker):]
	}

	var followUps []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789. )")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		followUps = append(followUps, line)
		if len(followUps) >= max {
			break
		}
	}

	return strings.TrimSpace(body), followUps
}
