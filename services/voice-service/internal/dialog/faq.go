package dialog

import (
	"context"
	"strconv"
	"strings"

	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

// operatorOption is a synthetic entry offered alongside the stored answers;
// matching it hands the call to a person instead of an answer.
const (
	operatorOption   = "operator"
	operatorQuestion = "I want to talk to a person"
)

func (m *Machine) startFAQ(ctx context.Context, s *model.CallSession) *voice.Script {
	entries, err := m.faqs.List(ctx)
	if err != nil {
		return m.systemTrouble(s, err)
	}
	if len(entries) == 0 {
		script := voice.New().Say("I don't have any saved answers yet.")
		m.promptAnythingElse(script, Continuation{})
		return script
	}

	cont := Continuation{}
	say := "Here's what I can answer. "
	for i, e := range entries {
		cont.Options = append(cont.Options, e.ID)
		say += "Press " + strconv.Itoa(i+1) + " for: " + e.Question + ". "
	}
	cont.Options = append(cont.Options, operatorOption)
	say += "Press " + strconv.Itoa(len(entries)+1) + " to talk to someone instead. " +
		"You can also just ask your question."
	return voice.New().Say(say).GatherAny(m.turnPath(StepFAQPick, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleFAQPick(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	entry, ok := m.matchFAQ(ctx, cont, in)
	if !ok {
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Press the number of the question, or ask it in your own words.").
				GatherAny(m.turnPath(StepFAQPick, cont), 1, m.cfg.GatherTimeout)
		})
	}
	m.progress(s)

	if entry.ID == operatorOption {
		s.IntentCounts["operator"]++
		return m.forward(s, "caller request")
	}
	if in.Digits != "" {
		// A keypress picks exactly one entry; no read-back needed.
		return m.answerFAQ(s, cont, entry)
	}
	c := Continuation{CallerID: cont.CallerID, Options: []string{entry.ID}}
	return voice.New().
		Say("You're asking: "+entry.Question+". Is that right? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepFAQConfirm, c), 1, m.cfg.GatherTimeout)
}

// matchFAQ resolves a keypress against the numbered list, or matches a
// freeform question against the stored ones (plus the operator entry) via
// the classifier.
func (m *Machine) matchFAQ(ctx context.Context, cont Continuation, in TurnInput) (model.FAQEntry, bool) {
	if n, err := strconv.Atoi(in.Digits); err == nil {
		if n < 1 || n > len(cont.Options) {
			return model.FAQEntry{}, false
		}
		id := cont.Options[n-1]
		if id == operatorOption {
			return model.FAQEntry{ID: operatorOption}, true
		}
		entry, err := m.faqs.Get(ctx, id)
		if err != nil {
			m.logger.Warn("faq lookup failed", "err", err)
			return model.FAQEntry{}, false
		}
		return entry, true
	}

	spoken := strings.TrimSpace(in.Speech)
	if spoken == "" {
		return model.FAQEntry{}, false
	}
	entries, err := m.faqs.List(ctx)
	if err != nil {
		m.logger.Warn("faq list failed", "err", err)
		return model.FAQEntry{}, false
	}
	questions := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		questions = append(questions, e.Question)
	}
	questions = append(questions, operatorQuestion)
	matched, err := m.classify.MatchQuestion(ctx, spoken, questions)
	if err != nil {
		m.logger.Warn("faq classification failed", "err", err)
		return model.FAQEntry{}, false
	}
	if matched == operatorQuestion {
		return model.FAQEntry{ID: operatorOption}, true
	}
	for _, e := range entries {
		if e.Question == matched {
			return e, true
		}
	}
	return model.FAQEntry{}, false
}

func (m *Machine) handleFAQConfirm(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	if len(cont.Options) != 1 {
		m.logger.Warn("bad faq continuation")
		script := voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{})
		return script
	}

	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		entry, err := m.faqs.Get(ctx, cont.Options[0])
		if err != nil {
			return m.systemTrouble(s, err)
		}
		return m.answerFAQ(s, cont, entry)
	case intent.SentimentNegative:
		m.progress(s)
		return m.startFAQ(ctx, s)
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Is that your question? Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepFAQConfirm, cont), 1, m.cfg.GatherTimeout)
		})
	}
}

func (m *Machine) answerFAQ(s *model.CallSession, cont Continuation, entry model.FAQEntry) *voice.Script {
	return voice.New().
		Say(entry.Answer).
		Say("Would you like to hear another answer? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepFAQMore, Continuation{CallerID: cont.CallerID}), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleFAQMore(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		return m.startFAQ(ctx, s)
	case intent.SentimentNegative:
		m.progress(s)
		script := voice.New()
		m.promptAnythingElse(script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepFAQMore, cont), 1, m.cfg.GatherTimeout)
		})
	}
}
