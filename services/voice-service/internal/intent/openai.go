package intent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClassifier backs the classifier with a chat-completion model. Each
// task is a single zero-temperature completion with a strict output contract;
// anything the model returns outside the contract is treated as no match.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

const noMatchToken = "NONE"

func (c *OpenAIClassifier) ExtractName(ctx context.Context, utterance string) (string, error) {
	out, err := c.complete(ctx,
		"Extract the person's name from the caller's words. Reply with only the name, or NONE if there is none.",
		utterance)
	if err != nil {
		return "", err
	}
	if out == noMatchToken {
		return "", nil
	}
	return out, nil
}

func (c *OpenAIClassifier) ExtractTime(ctx context.Context, utterance string) (string, error) {
	out, err := c.complete(ctx,
		"Extract the time of day the caller mentioned. Reply with only the time in H:MM AM/PM form, or NONE.",
		utterance)
	if err != nil {
		return "", err
	}
	if out == noMatchToken {
		return "", nil
	}
	return out, nil
}

func (c *OpenAIClassifier) Sentiment(ctx context.Context, utterance string) (Sentiment, error) {
	out, err := c.complete(ctx,
		"Decide whether the caller's answer is affirmative or negative. Reply with exactly YES, NO, or NONE.",
		utterance)
	if err != nil {
		return SentimentUnknown, err
	}
	switch out {
	case "YES":
		return SentimentAffirmative, nil
	case "NO":
		return SentimentNegative, nil
	}
	return SentimentUnknown, nil
}

func (c *OpenAIClassifier) MatchQuestion(ctx context.Context, utterance string, candidates []string) (string, error) {
	idx, err := c.pickIndex(ctx,
		"The caller asked a question. Pick the stored question that means the same thing.",
		utterance, candidates)
	if err != nil || idx == NoSelection {
		return "", err
	}
	return candidates[idx], nil
}

func (c *OpenAIClassifier) SelectOption(ctx context.Context, utterance string, options []string) (int, error) {
	return c.pickIndex(ctx,
		"The caller is choosing one of the listed items.",
		utterance, options)
}

func (c *OpenAIClassifier) pickIndex(ctx context.Context, instruction, utterance string, options []string) (int, error) {
	if len(options) == 0 {
		return NoSelection, nil
	}
	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString(" Reply with only the item number, or NONE if none fits or you are uncertain.\n")
	for i, opt := range options {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, opt)
	}
	out, err := c.complete(ctx, sb.String(), utterance)
	if err != nil {
		return NoSelection, err
	}
	n, err := strconv.Atoi(strings.TrimSuffix(out, "."))
	if err != nil || n < 1 || n > len(options) {
		return NoSelection, nil
	}
	return n - 1, nil
}

func (c *OpenAIClassifier) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   30,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty completion response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Classifier = (*OpenAIClassifier)(nil)
