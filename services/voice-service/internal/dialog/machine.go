// Package dialog drives the phone conversation. Each webhook turn loads the
// caller's session, interprets the input for the step named in the URL,
// mutates the session, and answers with a voice script whose gather actions
// carry the continuation token for the next turn.
package dialog

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openpantry/pantryline/services/voice-service/internal/availability"
	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

// Turn step names. They appear in gather action URLs as
// /voice/v1/turn/{step}.
const (
	StepMenu           = "menu"
	StepIdentityCheck  = "identity-check"
	StepName           = "name"
	StepNameConfirm    = "name-confirm"
	StepDate           = "date"
	StepDateConfirm    = "date-confirm"
	StepTime           = "time"
	StepBookConfirm    = "book-confirm"
	StepCancelPick     = "cancel-pick"
	StepCancelConfirm  = "cancel-confirm"
	StepReschedulePick = "reschedule-pick"
	StepFAQPick        = "faq-pick"
	StepFAQConfirm     = "faq-confirm"
	StepFAQMore        = "faq-more"
	StepAnythingElse   = "anything-else"
)

const defaultLanguage = "en"

type Config struct {
	PantryAddress  string
	OperatorNumber string
	GatherTimeout  int // seconds a gather waits before posting empty input
	StrikeLimit    int // consecutive failures before an operator transfer
}

func (c *Config) applyDefaults() {
	if c.GatherTimeout <= 0 {
		c.GatherTimeout = 5
	}
	if c.StrikeLimit <= 0 {
		c.StrikeLimit = 2
	}
}

// TurnInput is what the telephony layer posted for this turn.
type TurnInput struct {
	Phone   string
	Digits  string
	Speech  string
	Context string // continuation token from the gather action URL
}

func (in TurnInput) utterance() string {
	if in.Digits != "" {
		return in.Digits
	}
	return strings.TrimSpace(in.Speech)
}

type Machine struct {
	callers  CallerStore
	appts    AppointmentStore
	sessions SessionStore
	faqs     FAQStore
	avail    *availability.Engine
	classify intent.Classifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewMachine(callers CallerStore, appts AppointmentStore, sessions SessionStore, faqs FAQStore,
	avail *availability.Engine, classify intent.Classifier, logger *slog.Logger, cfg Config) *Machine {
	cfg.applyDefaults()
	return &Machine{
		callers:  callers,
		appts:    appts,
		sessions: sessions,
		faqs:     faqs,
		avail:    avail,
		classify: classify,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// StartCall answers a fresh inbound call: open a session, greet, and present
// the main menu.
func (m *Machine) StartCall(ctx context.Context, phone string) *voice.Script {
	if !model.ValidPhone(phone) {
		// Nothing can be keyed off this number, not even a session.
		m.logger.Warn("call from unparseable number", "phone", phone)
		return voice.New().
			Say("Thanks for calling the Open Pantry food bank. I'm sorry, I'm unable to help at this time.").
			Hangup()
	}

	s, err := m.sessions.Start(ctx, phone, defaultLanguage)
	if err != nil {
		m.logger.Error("start session failed", "err", err)
		return m.troubleScript()
	}

	greeting := "Thanks for calling the Open Pantry food bank."
	if caller, err := m.callers.FindByPhone(ctx, phone); err == nil {
		greeting += " Hi, " + caller.FirstName + "."
	} else if !errors.Is(err, model.ErrNotFound) {
		m.logger.Error("caller lookup failed", "err", err)
	}

	script := voice.New().Say(greeting)
	m.promptMenu(script, Continuation{})
	m.record(ctx, s, "", script)
	return script
}

// Turn handles one webhook round trip for the named step.
func (m *Machine) Turn(ctx context.Context, step string, in TurnInput) *voice.Script {
	if !model.ValidPhone(in.Phone) {
		return voice.New().
			Say("I'm sorry, I'm unable to help at this time.").
			Hangup()
	}

	s, err := m.sessions.Latest(ctx, in.Phone)
	if errors.Is(err, model.ErrNotFound) {
		// Session lost (restart mid-call); open a new one and resume.
		s, err = m.sessions.Start(ctx, in.Phone, defaultLanguage)
	}
	if err != nil {
		m.logger.Error("load session failed", "err", err)
		return m.troubleScript()
	}

	var script *voice.Script
	cont, err := DecodeContinuation(in.Context)
	if err != nil {
		m.logger.Warn("bad continuation token", "step", step, "err", err)
		script = voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{})
	} else {
		script = m.dispatch(ctx, s, step, cont, in)
	}

	m.record(ctx, s, in.utterance(), script)
	return script
}

// EndCall closes the session when the telephony layer reports the call over.
func (m *Machine) EndCall(ctx context.Context, phone string) {
	if !model.ValidPhone(phone) {
		return
	}
	s, err := m.sessions.Latest(ctx, phone)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			m.logger.Error("load session failed", "err", err)
		}
		return
	}
	if s.EndedAt != nil {
		return
	}
	now := m.now()
	s.EndedAt = &now
	if err := m.sessions.Save(ctx, s); err != nil {
		m.logger.Error("save session failed", "err", err)
	}
}

func (m *Machine) dispatch(ctx context.Context, s *model.CallSession, step string, cont Continuation, in TurnInput) *voice.Script {
	switch step {
	case StepMenu:
		return m.handleMenu(ctx, s, cont, in)
	case StepIdentityCheck:
		return m.handleIdentityCheck(ctx, s, cont, in)
	case StepName:
		return m.handleName(ctx, s, cont, in)
	case StepNameConfirm:
		return m.handleNameConfirm(ctx, s, cont, in)
	case StepDate:
		return m.handleDate(ctx, s, cont, in)
	case StepDateConfirm:
		return m.handleDateConfirm(ctx, s, cont, in)
	case StepTime:
		return m.handleTime(ctx, s, cont, in)
	case StepBookConfirm:
		return m.handleBookConfirm(ctx, s, cont, in)
	case StepCancelPick:
		return m.handlePick(ctx, s, cont, in, false)
	case StepCancelConfirm:
		return m.handleCancelConfirm(ctx, s, cont, in)
	case StepReschedulePick:
		return m.handlePick(ctx, s, cont, in, true)
	case StepFAQPick:
		return m.handleFAQPick(ctx, s, cont, in)
	case StepFAQConfirm:
		return m.handleFAQConfirm(ctx, s, cont, in)
	case StepFAQMore:
		return m.handleFAQMore(ctx, s, cont, in)
	case StepAnythingElse:
		return m.handleAnythingElse(ctx, s, cont, in)
	default:
		m.logger.Warn("unknown turn step", "step", step)
		script := voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{})
		return script
	}
}

// Menu selection.

const (
	menuSchedule = iota
	menuCancel
	menuReschedule
	menuFAQ
	menuOperator
)

var menuOptions = []string{
	"schedule a pickup",
	"cancel an appointment",
	"reschedule an appointment",
	"ask a question",
	"talk to someone",
}

func (m *Machine) promptMenu(script *voice.Script, cont Continuation) {
	script.Say("To schedule a food pickup, press 1. To cancel an appointment, press 2. " +
		"To reschedule, press 3. For answers to common questions, press 4. " +
		"To talk to someone, press 0. You can also just tell me what you need.").
		GatherAny(m.turnPath(StepMenu, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleMenu(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	choice, ok := m.menuChoice(ctx, in)
	if !ok {
		if in.Digits != "" {
			// A wrong keypress is a misdial, not a misunderstanding;
			// replay the menu without charging a strike.
			m.logger.Info("invalid menu digit", "digits", in.Digits)
			script := voice.New().Say("That's not one of the options.")
			m.promptMenu(script, cont)
			return script
		}
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			m.promptMenu(script, cont)
		})
	}
	m.progress(s)

	switch choice {
	case menuSchedule:
		s.IntentCounts["schedule"]++
		return m.startSchedule(ctx, s, cont)
	case menuCancel:
		s.IntentCounts["cancel"]++
		return m.startPick(ctx, s, false)
	case menuReschedule:
		s.IntentCounts["reschedule"]++
		return m.startPick(ctx, s, true)
	case menuFAQ:
		s.IntentCounts["faq"]++
		return m.startFAQ(ctx, s)
	default:
		s.IntentCounts["operator"]++
		return m.forward(s, "caller request")
	}
}

func (m *Machine) menuChoice(ctx context.Context, in TurnInput) (int, bool) {
	switch in.Digits {
	case "1":
		return menuSchedule, true
	case "2":
		return menuCancel, true
	case "3":
		return menuReschedule, true
	case "4":
		return menuFAQ, true
	case "0":
		return menuOperator, true
	}
	spoken := strings.ToLower(strings.TrimSpace(in.Speech))
	if spoken == "" {
		return 0, false
	}
	words := map[string]bool{}
	for _, w := range strings.Fields(spoken) {
		words[strings.Trim(w, ".,!?")] = true
	}
	// Cancel before the reschedule synonyms: "I need to cancel, my plans
	// changed" names both and the named action wins.
	switch {
	case words["cancel"]:
		return menuCancel, true
	case words["reschedule"] || words["change"] || words["changed"] || words["move"] || words["moved"]:
		return menuReschedule, true
	case words["schedule"] || words["book"] || words["pickup"] || strings.Contains(spoken, "pick up"):
		return menuSchedule, true
	case words["question"] || words["hours"] || words["open"]:
		return menuFAQ, true
	case words["operator"] || words["person"] || words["someone"] || words["human"]:
		return menuOperator, true
	}
	idx, err := m.classify.SelectOption(ctx, spoken, menuOptions)
	if err != nil {
		m.logger.Warn("menu classification failed", "err", err)
		return 0, false
	}
	if idx == intent.NoSelection {
		return 0, false
	}
	return idx, true
}

// Strikes. A failed understanding bumps the segment counter; reaching the
// limit transfers the call. Understood input resets the segment counter, the
// total keeps counting for reporting.

func (m *Machine) strike(s *model.CallSession, apology string, reprompt func(*voice.Script)) *voice.Script {
	s.Strikes++
	s.TotalStrikes++
	if s.Strikes >= m.cfg.StrikeLimit {
		return m.forward(s, "repeated misunderstandings")
	}
	script := voice.New().Say(apology)
	reprompt(script)
	return script
}

func (m *Machine) progress(s *model.CallSession) {
	s.Strikes = 0
}

func (m *Machine) forward(s *model.CallSession, reason string) *voice.Script {
	s.Forwarded = true
	s.ForwardedFor = reason
	return voice.New().
		Say("Let me connect you with someone who can help.").
		Dial(m.cfg.OperatorNumber)
}

// systemTrouble is for dependency failures mid-flow: apologize and hand the
// call to a person rather than looping the caller.
func (m *Machine) systemTrouble(s *model.CallSession, err error) *voice.Script {
	m.logger.Error("turn failed", "err", err)
	return m.forward(s, "system error")
}

func (m *Machine) troubleScript() *voice.Script {
	return voice.New().
		Say("Sorry, we're having trouble right now. Let me connect you with someone who can help.").
		Dial(m.cfg.OperatorNumber)
}

// Shared yes/no reading: keypad 1/2, then whole-word cues, then the
// classifier. A refusal cue anywhere wins; "no, that's not right" carries
// "right" but must never read as a yes. Cue-free speech goes to the
// classifier, and Unknown counts as a miss.
func (m *Machine) yesNo(ctx context.Context, in TurnInput) intent.Sentiment {
	switch in.Digits {
	case "1":
		return intent.SentimentAffirmative
	case "2":
		return intent.SentimentNegative
	}
	spoken := strings.ToLower(strings.TrimSpace(in.Speech))
	if spoken == "" {
		return intent.SentimentUnknown
	}
	var yes, no bool
	for _, word := range strings.Fields(spoken) {
		switch strings.Trim(word, ".,!?") {
		case "no", "nope", "nah", "not", "don't", "wrong":
			no = true
		case "yes", "yeah", "yep", "correct", "right", "sure":
			yes = true
		}
	}
	if no {
		return intent.SentimentNegative
	}
	if yes {
		return intent.SentimentAffirmative
	}
	sentiment, err := m.classify.Sentiment(ctx, spoken)
	if err != nil {
		m.logger.Warn("sentiment classification failed", "err", err)
		return intent.SentimentUnknown
	}
	return sentiment
}

func (m *Machine) handleAnythingElse(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		script := voice.New()
		m.promptMenu(script, Continuation{CallerID: cont.CallerID})
		return script
	case intent.SentimentNegative:
		m.progress(s)
		now := m.now()
		s.EndedAt = &now
		return voice.New().Say("Thanks for calling. Goodbye.").Hangup()
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			m.promptAnythingElse(script, cont)
		})
	}
}

func (m *Machine) promptAnythingElse(script *voice.Script, cont Continuation) {
	script.Say("Is there anything else I can help you with? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepAnythingElse, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) turnPath(step string, cont Continuation) string {
	return "/voice/v1/turn/" + step + "?ctx=" + cont.Encode()
}

// record appends the turn to the transcript and saves the session. Save
// failures are logged, not surfaced; the caller still gets a script.
func (m *Machine) record(ctx context.Context, s *model.CallSession, heard string, script *voice.Script) {
	now := m.now()
	if heard != "" {
		s.Transcript = append(s.Transcript, model.TranscriptEntry{Speaker: "caller", Message: heard, At: now})
	}
	for _, line := range script.SpokenText() {
		s.Transcript = append(s.Transcript, model.TranscriptEntry{Speaker: "assistant", Message: line, At: now})
	}
	if err := m.sessions.Save(ctx, s); err != nil {
		m.logger.Error("save session failed", "err", err)
	}
}
