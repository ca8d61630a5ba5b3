package client

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/bz888/modeler/internal/apperr"
	"github.com/bz888/modeler/internal/transcript"
)

// Precontexts are the server-side prompt presets the modeler API knows about.
var Precontexts = []string{
	"clientResponder",
	"clientResponder2",
	"development",
	"hondenmeesters",
}

type ChatRequest struct {
	Model      string    `json:"model"`
	Precontext string    `json:"precontext"`
	Messages   []Message `json:"messages"`
	Stream     bool      `json:"stream"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fragment is one line of the streamed chat response. Only Message.Content is
// consumed; the rest is kept for logging.
type Fragment struct {
	Model     string           `json:"model"`
	CreatedAt string           `json:"created_at"`
	Message   *FragmentMessage `json:"message"`
	Done      bool             `json:"done"`
	Error     string           `json:"error"`
}

type FragmentMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// BuildChatRequest serialises the transcript into the chat payload. Output is
// byte-identical for identical input.
func BuildChatRequest(t *transcript.Transcript, model, precontext string, stream bool) ([]byte, error) {
	if strings.TrimSpace(model) == "" {
		return nil, apperr.Serialization("model is empty", nil)
	}

	pending, hasPending := t.Pending()
	turns := t.Turns()
	messages := make([]Message, 0, len(turns))
	for _, turn := range turns {
		if hasPending && turn.ID == pending.ID && turn.Content == "" {
			return nil, apperr.Serialization("pending turn "+turn.ID+" has no content", nil)
		}
		if !utf8.ValidString(turn.Content) {
			return nil, apperr.Serialization("turn "+turn.ID+" is not valid UTF-8", nil)
		}
		messages = append(messages, Message{Role: string(turn.Role), Content: turn.Content})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(ChatRequest{
		Model:      model,
		Precontext: precontext,
		Messages:   messages,
		Stream:     stream,
	})
	if err != nil {
		return nil, apperr.Serialization("encode chat request", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// DecodeFragment extracts the incremental text from one response line.
// Blank lines and records with empty content yield ok=false with no error.
// A record carrying an error field is a Transport error: the stream failed
// upstream after the response had started. Anything else unusable is a
// Decode error.
func DecodeFragment(line []byte) (text string, ok bool, err error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return "", false, nil
	}

	var frag Fragment
	if err := json.Unmarshal(trimmed, &frag); err != nil {
		return "", false, apperr.Decode("invalid fragment", err)
	}
	if frag.Error != "" {
		return "", false, apperr.Transport("upstream error: "+frag.Error, nil)
	}
	if frag.Message == nil || frag.Message.Content == nil {
		return "", false, apperr.Decode("fragment has no message.content", nil)
	}
	if *frag.Message.Content == "" {
		return "", false, nil
	}
	return *frag.Message.Content, true, nil
}
