// Package nlu answers free-form queries no plugin claimed.
package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

type Reply struct {
	Intent string `json:"intent"`
	Answer string `json:"answer"`
}

const systemPrompt = `
You are the voice of a personal desktop assistant.
The user's words were transcribed from speech, lower-cased, with punctuation removed.

RULES:
1. Output ONLY JSON. No markdown.
2. "answer" is read aloud: one or two short plain sentences, no lists, no URLs.
3. If the request needs a device or action you cannot perform, say so briefly.
4. If the meaning is unclear, set intent to "unknown" and ask the user to repeat.

OUTPUT FORMAT:
{
  "intent": "<question|command|smalltalk|unknown>",
  "answer": "<text to speak>"
}
`

// Answerer asks a chat model for a spoken answer.
type Answerer struct {
	client openai.Client
	model  openai.ChatModel
}

func NewAnswerer(client openai.Client, model string) *Answerer {
	m := openai.ChatModelGPT5Nano
	if model != "" {
		m = openai.ChatModel(model)
	}
	return &Answerer{client: client, model: m}
}

func (a *Answerer) Answer(ctx context.Context, query string) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(query),
		},
		Model: a.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	log.Debug("Answer received", "data", content)

	reply, err := ParseReply(content)
	if err != nil {
		return "", err
	}

	return reply.Answer, nil
}

// ParseReply decodes the model output, tolerating a markdown code fence.
func ParseReply(content string) (Reply, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if s == "" {
		return Reply{}, errors.New("empty message content")
	}

	var out Reply
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return Reply{}, fmt.Errorf("unmarshal reply: %w (raw: %s)", err, content)
	}
	if strings.TrimSpace(out.Answer) == "" {
		return Reply{}, fmt.Errorf("reply has no answer (raw: %s)", content)
	}

	return out, nil
}
