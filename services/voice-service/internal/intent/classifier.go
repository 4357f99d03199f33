// Package intent is the boundary to the external speech-understanding
// services. The classifier is a black box: it either returns a structured
// value or reports no match. Transport failures are surfaced as errors and
// callers are expected to fail safe by treating them as no match.
package intent

import "context"

// Sentiment is the three-way reading of a yes/no answer. Unknown is distinct
// from Negative: an explicit "no" advances the flow, an Unknown counts as a
// failure to understand.
type Sentiment int

const (
	SentimentUnknown Sentiment = iota
	SentimentAffirmative
	SentimentNegative
)

// NoSelection is returned by SelectOption when the utterance maps to none of
// the offered options, or the classifier is uncertain.
const NoSelection = -1

type Classifier interface {
	// ExtractName pulls a person's name out of free speech. Empty means no match.
	ExtractName(ctx context.Context, utterance string) (string, error)
	// ExtractTime pulls a time-of-day phrase out of free speech. Empty means no match.
	ExtractTime(ctx context.Context, utterance string) (string, error)
	// Sentiment classifies a yes/no answer.
	Sentiment(ctx context.Context, utterance string) (Sentiment, error)
	// MatchQuestion picks the candidate question closest to the utterance.
	// Empty means no candidate matched.
	MatchQuestion(ctx context.Context, utterance string, candidates []string) (string, error)
	// SelectOption maps the utterance to an index into options, or NoSelection.
	SelectOption(ctx context.Context, utterance string, options []string) (int, error)
}

// NoopClassifier never matches anything. It keeps the service runnable when
// no classifier backend is configured; every speech turn then reprompts.
type NoopClassifier struct{}

func NewNoopClassifier() *NoopClassifier { return &NoopClassifier{} }

func (*NoopClassifier) ExtractName(context.Context, string) (string, error) { return "", nil }
func (*NoopClassifier) ExtractTime(context.Context, string) (string, error) { return "", nil }
func (*NoopClassifier) Sentiment(context.Context, string) (Sentiment, error) {
	return SentimentUnknown, nil
}
func (*NoopClassifier) MatchQuestion(context.Context, string, []string) (string, error) {
	return "", nil
}
func (*NoopClassifier) SelectOption(context.Context, string, []string) (int, error) {
	return NoSelection, nil
}
