package dialog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openpantry/pantryline/services/voice-service/internal/availability"
	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

const dateLayout = "2006-01-02"

// startSchedule enters the booking flow. Unknown numbers go through
// enrollment first; returning callers confirm who they are before picking
// a day, since households share phones.
func (m *Machine) startSchedule(ctx context.Context, s *model.CallSession, cont Continuation) *voice.Script {
	caller, err := m.callers.FindByPhone(ctx, s.Phone)
	if errors.Is(err, model.ErrNotFound) {
		script := voice.New().Say("I don't have you enrolled yet, so let's fix that.")
		m.promptName(script, cont)
		return script
	}
	if err != nil {
		return m.systemTrouble(s, err)
	}
	cont.CallerID = caller.ID
	return voice.New().
		Say("I have you down as "+caller.FullName()+". Is that right? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepIdentityCheck, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleIdentityCheck(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		script := voice.New()
		m.promptDate(script, cont)
		return script
	case intent.SentimentNegative:
		// Keep the caller id so name confirmation updates the profile
		// instead of creating a duplicate for the same number.
		m.progress(s)
		script := voice.New().Say("Let's get your name straightened out.")
		m.promptName(script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Is that your name? Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepIdentityCheck, cont), 1, m.cfg.GatherTimeout)
		})
	}
}

func (m *Machine) promptName(script *voice.Script, cont Continuation) {
	cont.FirstName, cont.LastName = "", ""
	script.Say("After the tone, please tell me your first and last name.").
		GatherSpeech(m.turnPath(StepName, cont), m.cfg.GatherTimeout)
}

func (m *Machine) handleName(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	spoken := strings.TrimSpace(in.Speech)
	if spoken == "" {
		return m.strike(s, "I didn't hear a name.", func(script *voice.Script) {
			m.promptName(script, cont)
		})
	}

	// Prefer the classifier's cleanup of the transcription, fall back to
	// the raw utterance, then split naively: first word, last word.
	name := spoken
	if cleaned, err := m.classify.ExtractName(ctx, spoken); err != nil {
		m.logger.Warn("name extraction failed", "err", err)
	} else if cleaned != "" {
		name = cleaned
	}
	first, last := intent.SplitName(name)
	if first == "" {
		return m.strike(s, "I didn't catch a name in that.", func(script *voice.Script) {
			m.promptName(script, cont)
		})
	}
	m.progress(s)

	cont.FirstName, cont.LastName = first, last
	full := first
	if last != "" {
		full += " " + last
	}
	return voice.New().
		Say("I heard "+full+". Did I get that right? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepNameConfirm, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleNameConfirm(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		profile := model.CallerProfile{
			ID:        cont.CallerID,
			FirstName: cont.FirstName,
			LastName:  cont.LastName,
			Phone:     s.Phone,
			Language:  s.Language,
		}
		var caller model.CallerProfile
		var err error
		if cont.CallerID != "" {
			caller, err = m.callers.Update(ctx, profile)
		} else {
			caller, err = m.callers.Create(ctx, profile)
		}
		if err != nil {
			return m.systemTrouble(s, err)
		}
		said := "Thanks, " + caller.FirstName + ". You're enrolled."
		if cont.CallerID != "" {
			said = "Thanks, " + caller.FirstName + ". I've fixed that."
		}
		cont.CallerID = caller.ID
		cont.FirstName, cont.LastName = "", ""
		script := voice.New().Say(said)
		m.promptDate(script, cont)
		return script
	case intent.SentimentNegative:
		m.progress(s)
		script := voice.New().Say("My mistake. Let's try again.")
		m.promptName(script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepNameConfirm, cont), 1, m.cfg.GatherTimeout)
		})
	}
}

func (m *Machine) promptDate(script *voice.Script, cont Continuation) {
	cont.Date = ""
	cont.OfferMinute = 0
	script.Say("What day of the week works for your pickup?").
		GatherSpeech(m.turnPath(StepDate, cont), m.cfg.GatherTimeout)
}

func (m *Machine) handleDate(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	weekday, ok := intent.ParseWeekday(in.Speech)
	if !ok {
		return m.strike(s, "I didn't catch a day of the week.", func(script *voice.Script) {
			m.promptDate(script, cont)
		})
	}
	m.progress(s)

	day, open, found, err := m.avail.FindNextDate(ctx, m.now(), weekday)
	if err != nil {
		return m.systemTrouble(s, err)
	}
	if !found {
		script := voice.New().Say("I'm sorry, I don't see any " + weekday.String() +
			" openings in the next four weeks. Would another day work?")
		script.GatherSpeech(m.turnPath(StepDate, cont), m.cfg.GatherTimeout)
		return script
	}

	cont.Date = day.Format(dateLayout)
	spoken := day.Format("Monday, January 2")
	times := "times"
	if open == 1 {
		times = "time"
	}
	return voice.New().
		Say("The next "+weekday.String()+" with openings is "+spoken+", with "+
			countWords(open)+" "+times+" available. Does that day work? Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepDateConfirm, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleDateConfirm(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		script := voice.New()
		m.promptTime(ctx, script, cont)
		return script
	case intent.SentimentNegative:
		m.progress(s)
		script := voice.New().Say("No problem.")
		m.promptDate(script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Does that day work? Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepDateConfirm, cont), 1, m.cfg.GatherTimeout)
		})
	}
}

// promptTime asks for a pickup time. When only a few slots remain on the
// chosen day it reads them out instead of taking an open-ended time.
func (m *Machine) promptTime(ctx context.Context, script *voice.Script, cont Continuation) {
	cont.OfferMinute = 0
	ask := "What time would you like? We book pickups between 9 AM and 5 PM."
	if day, err := time.Parse(dateLayout, cont.Date); err == nil {
		slots, err := m.avail.ListTimes(ctx, day)
		if err != nil {
			m.logger.Warn("slot listing failed", "err", err)
		} else if n := len(slots); n > 0 && n <= 3 {
			spoken := make([]string, n)
			for i, t := range slots {
				spoken[i] = intent.ClockText(t.Hour()*60 + t.Minute())
			}
			ask = "I have " + spokenList(spoken) + " open that day. Which time works?"
		}
	}
	script.Say(ask).GatherSpeech(m.turnPath(StepTime, cont), m.cfg.GatherTimeout)
}

// spokenList joins items the way they would be read aloud.
func spokenList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
}

func (m *Machine) handleTime(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	wantMinute, ok := intent.ParseClock(in.Speech)
	if !ok {
		if cleaned, err := m.classify.ExtractTime(ctx, in.Speech); err != nil {
			m.logger.Warn("time extraction failed", "err", err)
		} else if cleaned != "" {
			wantMinute, ok = intent.ParseClock(cleaned)
		}
	}
	if !ok {
		return m.strike(s, "I didn't catch a time.", func(script *voice.Script) {
			m.promptTime(ctx, script, cont)
		})
	}
	m.progress(s)

	day, err := time.Parse(dateLayout, cont.Date)
	if err != nil {
		m.logger.Warn("bad date in continuation", "date", cont.Date, "err", err)
		script := voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{CallerID: cont.CallerID})
		return script
	}
	return m.offerSlot(ctx, s, cont, day, wantMinute, "")
}

// offerSlot finds the open slot nearest the requested minute and asks for a
// final confirmation. preamble lets a conflict retry explain itself first.
func (m *Machine) offerSlot(ctx context.Context, s *model.CallSession, cont Continuation, day time.Time, wantMinute int, preamble string) *voice.Script {
	slots, err := m.avail.ListTimes(ctx, day)
	if err != nil {
		return m.systemTrouble(s, err)
	}
	if len(slots) == 0 {
		script := voice.New().Say("I'm sorry, that day has filled up. Would another day work?")
		m.promptDate(script, cont)
		return script
	}

	slot, _ := availability.Nearest(slots, wantMinute)
	offerMinute := slot.Hour()*60 + slot.Minute()
	cont.OfferMinute = offerMinute

	say := preamble
	if offerMinute == wantMinute {
		say += "I can book you for " + day.Format("Monday, January 2") + " at " +
			intent.ClockText(offerMinute) + ". Shall I book it?"
	} else {
		say += "The closest opening I have to " + intent.ClockText(wantMinute) + " is " +
			intent.ClockText(offerMinute) + " on " + day.Format("Monday, January 2") + ". Shall I book it?"
	}
	return voice.New().
		Say(say+" Say yes or no, or press 1 for yes, 2 for no.").
		GatherAny(m.turnPath(StepBookConfirm, cont), 1, m.cfg.GatherTimeout)
}

func (m *Machine) handleBookConfirm(ctx context.Context, s *model.CallSession, cont Continuation, in TurnInput) *voice.Script {
	day, dayErr := time.Parse(dateLayout, cont.Date)
	if dayErr != nil || cont.CallerID == "" {
		m.logger.Warn("bad booking continuation", "date", cont.Date)
		script := voice.New().Say("Sorry, I lost my place. Let's start over.")
		m.promptMenu(script, Continuation{})
		return script
	}

	switch m.yesNo(ctx, in) {
	case intent.SentimentAffirmative:
		m.progress(s)
		start := day.Add(time.Duration(cont.OfferMinute) * time.Minute)
		appt := model.Appointment{
			CallerID: cont.CallerID,
			Start:    start,
			End:      start.Add(m.avail.SlotDuration()),
			Location: m.cfg.PantryAddress,
		}

		var booked model.Appointment
		var err error
		if cont.ReplaceID != "" {
			booked, err = m.appts.Replace(ctx, cont.ReplaceID, appt)
		} else {
			booked, err = m.appts.Book(ctx, appt)
		}
		if errors.Is(err, model.ErrConflict) {
			// Someone confirmed this slot between offer and now; go
			// back to the calendar and offer the next closest.
			return m.offerSlot(ctx, s, cont, day, cont.OfferMinute,
				"I'm sorry, that time was just taken. ")
		}
		if err != nil {
			return m.systemTrouble(s, err)
		}

		done := "You're all set for " + booked.SpokenDate() + " at " + booked.SpokenTime() +
			", at " + m.cfg.PantryAddress + ". We'll text you a reminder the day before."
		cont.ReplaceID, cont.Date, cont.OfferMinute = "", "", 0
		script := voice.New().Say(done)
		m.promptAnythingElse(script, cont)
		return script
	case intent.SentimentNegative:
		m.progress(s)
		script := voice.New().Say("Okay, I won't book that.")
		m.promptTime(ctx, script, cont)
		return script
	default:
		return m.strike(s, "I didn't catch that.", func(script *voice.Script) {
			script.Say("Shall I book it? Say yes or no, or press 1 for yes, 2 for no.").
				GatherAny(m.turnPath(StepBookConfirm, cont), 1, m.cfg.GatherTimeout)
		})
	}
}

// countWords spells out small counts the way a person would say them.
func countWords(n int) string {
	words := []string{"no", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}
	if n >= 0 && n < len(words) {
		return words[n]
	}
	return "several"
}
