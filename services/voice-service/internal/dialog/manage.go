package dialog

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

// startPick enters the cancel or reschedule flow by finding the caller's
// upcoming appointments. One appointment skips straight to confirmation;
// several get read out as a numbered list.
func (m *Machine) startPick(ctx context.Context, s *model.CallSession, reschedule bool) *voice.Script {
	caller, err := m.callers.FindByPhone(ctx, s.Phone)
	if errors.Is(err, model.ErrNotFound) {
		script := voice.New().Say("I don't have any appointments for this phone number.")
		m.promptAnythingElse(script, Continuation{})
		return script
	}
	if err != nil {
		return m.systemTrouble(s, err)
	}

	appts, err := m.appts.ListUpcomingByCaller(ctx, caller.ID, m.now())
	if err != nil {
		return m.systemTrouble(s, err)
	}
	cont := Continuation{CallerID: caller.ID}
	if len(appts) == 0 {
		script := voice.New().Say("I don't see any upcoming appointments for you.")
		m.promptAnythingElse(script, cont)
		return script
	}

	if len(appts) == 1 {
		return m.confirmChoice(s, cont, appts[0], reschedule)
	}

	for _, a := range appts {
		cont.Options = append(cont.Options, a.ID)
	}
	step := StepCancelPick
	verb := "cancel"
	if reschedule {
		step = StepReschedulePick
		verb = "reschedule"
	}
	say := "You have " + countWords(len(appts)) + " upcoming appointments. "
	for i, a := range appts {
		say += "Press " + strconv.Itoa(i+1) + " for " + a.SpokenDate() + " at " + a.SpokenTime() + ". "
	}
	say += "Which one would you like to " + verb + "?"
	return voice.New().Say(say).GatherAny(m.turnPath(step, cont), 1, m.cfg.GatherTimeout)
}

// handlePick resolves the numbered choice from startPick.
func (m *Machine) handlePick(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput, reschedule bool) *voice.Script {
	idx, ok := m.pickIndex(ctx, in, len(cont.Options))
	if !ok {
		step := StepCancelPick
		if reschedule {
			step = StepReschedulePick
		}
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Please press the number of the appointment.").
				GatherAny(m.turnPath(step, cont), 1, m.cfg.GatherTimeout)
		})
	}
	m.progress(s)

	appt, err := m.appts.Get(ctx, cont.Options[idx])
	if errors.Is(err, model.ErrNotFound) {
		script := voice.New().Say("That appointment is no longer on the calendar.")
		m.promptAnythingElse(script, Continuation{CallerID: cont.CallerID})
		return script
	}
	if err != nil {
		return m.systemTrouble(s, err)
	}
	cont.Options = nil
	return m.confirmChoice(s, cont, appt, reschedule)
}

func (m *Machine) pickIndex(ctx context.Context, in TurnInput, count int) (int, bool) {
	if n, err := strconv.Atoi(in.Digits); err == nil {
		if n >= 1 && n <= count {
			return n - 1, true
		}
		return 0, false
	}
	spoken := strings.TrimSpace(in.Speech)
	if spoken == "" {
		return 0, false
	}
	options := make([]string, count)
	for i := range options {
		options[i] = "option " + strconv.Itoa(i+1)
	}
	idx, err := m.classify.SelectOption(ctx, spoken, options)
	if err != nil {
		m.logger.Warn("pick classification failed", "err", err)
		return 0, false
	}
	if idx == intent.NoSelection || idx < 0 || idx >= count {
		return 0, false
	}
	return idx, true
}

// confirmChoice asks for the final word on the selected appointment. For a
// reschedule there is nothing to confirm yet; the appointment id rides along
// into the scheduling flow and the swap happens at booking confirmation.
func (m *Machine) confirmChoice(s *model.CallSession, cont Continuation, appt model.Appointment, reschedule bool) *voice.Script {
	if reschedule {
		cont.ReplaceID = appt.ID
		script := voice.New().Say("Okay, let's move your " + appt.SpokenDate() + " appointment. " +
			"Your current time holds until you confirm a new one.")
		m.promptDate(script, cont)
		return script
	}
	cont.Options = []string{appt.ID}
	return voice.New().
		Say("Your appointment is "+appt.SpokenDate()+" at "+appt.SpokenTime()+
			". Do you want to cancel it? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepCancelConfirm, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleCancelConfirm(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	if len(cont.Options) != 1 {
		m.logger.Warn("bad cancel continuation")
		script := voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{})
		return script
	}

	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		removed, err := m.appts.Cancel(ctx, cont.Options[0])
		cont.Options = nil
		if errors.Is(err, model.ErrNotFound) {
			script := voice.New().Say("That appointment was already off the calendar.")
			m.promptAnythingElse(script, cont)
			return script
		}
		if err != nil {
			return m.systemTrouble(s, err)
		}
		script := voice.New().Say("Your appointment on " + removed.SpokenDate() + " at " +
			removed.SpokenTime() + " is cancelled.")
		m.promptAnythingElse(script, cont)
		return script
	case intent.SentimentNegative:
		m.progress(s)
		cont.Options = nil
		script := voice.New().Say("Okay, I'll leave it as is.")
		m.promptAnythingElse(script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Do you want to cancel it? Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepCancelConfirm, cont), 1, m.cfg.GatherTimeout)
		})
	}
}
