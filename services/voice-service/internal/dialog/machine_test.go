package dialog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/openpantry/pantryline/services/voice-service/internal/availability"
	"github.com/openpantry/pantryline/services/voice-service/internal/intent"
	"github.com/openpantry/pantryline/services/voice-service/internal/model"
	"github.com/openpantry/pantryline/services/voice-service/internal/voice"
)

// 2025-03-03 is a Monday.
var testNow = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

const testPhone = "+15551234567"

type fakeCallers struct {
	byPhone map[string]model.CallerProfile
	nextID  int
}

func (f *fakeCallers) FindByPhone(_ context.Context, phone string) (model.CallerProfile, error) {
	c, ok := f.byPhone[phone]
	if !ok {
		return model.CallerProfile{}, model.ErrNotFound
	}
	return c, nil
}

func (f *fakeCallers) Create(_ context.Context, c model.CallerProfile) (model.CallerProfile, error) {
	f.nextID++
	c.ID = fmt.Sprintf("caller-%d", f.nextID)
	c.CreatedAt = testNow
	f.byPhone[c.Phone] = c
	return c, nil
}

func (f *fakeCallers) Update(_ context.Context, c model.CallerProfile) (model.CallerProfile, error) {
	existing, ok := f.byPhone[c.Phone]
	if !ok || existing.ID != c.ID {
		return model.CallerProfile{}, model.ErrNotFound
	}
	c.CreatedAt = existing.CreatedAt
	f.byPhone[c.Phone] = c
	return c, nil
}

type fakeAppts struct {
	byID   map[string]model.Appointment
	nextID int
}

func (f *fakeAppts) ListByDate(_ context.Context, day time.Time) ([]model.Appointment, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)
	var out []model.Appointment
	for _, a := range f.byID {
		if !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeAppts) ListUpcomingByCaller(_ context.Context, callerID string, now time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.byID {
		if a.CallerID == callerID && !a.Start.Before(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (f *fakeAppts) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	return a, nil
}

func (f *fakeAppts) Book(_ context.Context, appt model.Appointment) (model.Appointment, error) {
	for _, existing := range f.byID {
		if appt.Start.Before(existing.End) && existing.Start.Before(appt.End) {
			return model.Appointment{}, model.ErrConflict
		}
	}
	f.nextID++
	appt.ID = fmt.Sprintf("appt-%d", f.nextID)
	appt.CreatedAt = testNow
	f.byID[appt.ID] = appt
	return appt, nil
}

func (f *fakeAppts) Cancel(_ context.Context, id string) (model.Appointment, error) {
	a, ok := f.byID[id]
	if !ok {
		return model.Appointment{}, model.ErrNotFound
	}
	delete(f.byID, id)
	return a, nil
}

func (f *fakeAppts) Replace(ctx context.Context, oldID string, appt model.Appointment) (model.Appointment, error) {
	old, err := f.Cancel(ctx, oldID)
	if err != nil {
		return model.Appointment{}, err
	}
	booked, err := f.Book(ctx, appt)
	if err != nil {
		f.byID[old.ID] = old
		return model.Appointment{}, err
	}
	return booked, nil
}

type fakeSessions struct {
	byPhone map[string]*model.CallSession
	nextID  int
}

func (f *fakeSessions) Start(_ context.Context, phone, language string) (*model.CallSession, error) {
	f.nextID++
	s := &model.CallSession{
		ID:           fmt.Sprintf("sess-%d", f.nextID),
		Phone:        phone,
		Language:     language,
		IntentCounts: map[string]int{},
		StartedAt:    testNow,
	}
	f.byPhone[phone] = s
	return s, nil
}

func (f *fakeSessions) Latest(_ context.Context, phone string) (*model.CallSession, error) {
	s, ok := f.byPhone[phone]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) Save(_ context.Context, s *model.CallSession) error {
	f.byPhone[s.Phone] = s
	return nil
}

type fakeFAQs struct {
	entries []model.FAQEntry
}

func (f *fakeFAQs) List(_ context.Context) ([]model.FAQEntry, error) {
	return append([]model.FAQEntry(nil), f.entries...), nil
}

func (f *fakeFAQs) Get(_ context.Context, id string) (model.FAQEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.FAQEntry{}, model.ErrNotFound
}

type fixture struct {
	m        *Machine
	callers  *fakeCallers
	appts    *fakeAppts
	sessions *fakeSessions
	faqs     *fakeFAQs
}

func newFixture() *fixture {
	callers := &fakeCallers{byPhone: map[string]model.CallerProfile{}}
	appts := &fakeAppts{byID: map[string]model.Appointment{}}
	sessions := &fakeSessions{byPhone: map[string]*model.CallSession{}}
	faqs := &fakeFAQs{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := availability.NewEngine(appts, availability.Config{})
	m := NewMachine(callers, appts, sessions, faqs, engine, intent.NewNoopClassifier(), logger, Config{
		PantryAddress:  "12 Harvest Way",
		OperatorNumber: "+15550100",
	})
	m.now = func() time.Time { return testNow }
	return &fixture{m: m, callers: callers, appts: appts, sessions: sessions, faqs: faqs}
}

func (f *fixture) turn(t *testing.T, step, token, digits, speech string) *voice.Script {
	t.Helper()
	return f.m.Turn(context.Background(), step, TurnInput{
		Phone:   testPhone,
		Digits:  digits,
		Speech:  speech,
		Context: token,
	})
}

// lastGather returns the step and continuation token from the script's
// gather action.
func lastGather(t *testing.T, script *voice.Script) (string, string) {
	t.Helper()
	for i := len(script.Actions) - 1; i >= 0; i-- {
		if g := script.Actions[i].Gather; g != nil {
			rest := strings.TrimPrefix(g.Action, "/voice/v1/turn/")
			step, token, _ := strings.Cut(rest, "?ctx=")
			return step, token
		}
	}
	t.Fatal("script has no gather action")
	return "", ""
}

func requireStep(t *testing.T, script *voice.Script, want string) string {
	t.Helper()
	step, token := lastGather(t, script)
	if step != want {
		t.Fatalf("expected gather for step %q, got %q (said: %v)", want, step, script.SpokenText())
	}
	return token
}

func requireSaid(t *testing.T, script *voice.Script, substr string) {
	t.Helper()
	for _, line := range script.SpokenText() {
		if strings.Contains(line, substr) {
			return
		}
	}
	t.Fatalf("expected script to say %q, said: %v", substr, script.SpokenText())
}

func hasDial(script *voice.Script) bool {
	for _, a := range script.Actions {
		if a.Dial != nil {
			return true
		}
	}
	return false
}

func hasHangup(script *voice.Script) bool {
	for _, a := range script.Actions {
		if a.Hangup != nil {
			return true
		}
	}
	return false
}

func TestEnrollmentAndBookingFlow(t *testing.T) {
	f := newFixture()

	script := f.m.StartCall(context.Background(), testPhone)
	token := requireStep(t, script, StepMenu)

	script = f.turn(t, StepMenu, token, "1", "")
	token = requireStep(t, script, StepName)

	script = f.turn(t, StepName, token, "", "Billy Bob")
	requireSaid(t, script, "I heard Billy Bob")
	token = requireStep(t, script, StepNameConfirm)

	script = f.turn(t, StepNameConfirm, token, "1", "")
	caller, ok := f.callers.byPhone[testPhone]
	if !ok {
		t.Fatal("expected caller to be enrolled")
	}
	if caller.FirstName != "Billy" || caller.LastName != "Bob" {
		t.Fatalf("unexpected name split: %q %q", caller.FirstName, caller.LastName)
	}
	token = requireStep(t, script, StepDate)

	script = f.turn(t, StepDate, token, "", "wednesday would be great")
	requireSaid(t, script, "Wednesday, March 5")
	token = requireStep(t, script, StepDateConfirm)

	script = f.turn(t, StepDateConfirm, token, "1", "")
	token = requireStep(t, script, StepTime)

	script = f.turn(t, StepTime, token, "", "2 pm")
	requireSaid(t, script, "2:00 PM")
	token = requireStep(t, script, StepBookConfirm)

	script = f.turn(t, StepBookConfirm, token, "1", "")
	requireSaid(t, script, "You're all set")
	requireSaid(t, script, "12 Harvest Way")

	if len(f.appts.byID) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(f.appts.byID))
	}
	for _, a := range f.appts.byID {
		want := time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC)
		if !a.Start.Equal(want) {
			t.Fatalf("start = %v, want %v", a.Start, want)
		}
		if !a.End.Equal(want.Add(30 * time.Minute)) {
			t.Fatalf("end = %v", a.End)
		}
		if a.CallerID != caller.ID {
			t.Fatalf("caller id = %q, want %q", a.CallerID, caller.ID)
		}
	}

	s := f.sessions.byPhone[testPhone]
	if s.IntentCounts["schedule"] != 1 {
		t.Fatalf("schedule intent count = %d", s.IntentCounts["schedule"])
	}
	if len(s.Transcript) == 0 {
		t.Fatal("expected transcript entries")
	}
}

func TestBookingRaceReoffersNearestSlot(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}

	script := f.turn(t, StepMenu, "", "1", "")
	requireSaid(t, script, "I have you down as Ada")
	token := requireStep(t, script, StepIdentityCheck)
	script = f.turn(t, StepIdentityCheck, token, "1", "")
	token = requireStep(t, script, StepDate)
	script = f.turn(t, StepDate, token, "", "Wednesday")
	token = requireStep(t, script, StepDateConfirm)
	script = f.turn(t, StepDateConfirm, token, "1", "")
	token = requireStep(t, script, StepTime)
	script = f.turn(t, StepTime, token, "", "2:00 pm")
	token = requireStep(t, script, StepBookConfirm)

	// Another caller confirms the same slot before we do.
	f.appts.byID["stolen"] = model.Appointment{
		ID:       "stolen",
		CallerID: "other",
		Start:    time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC),
	}

	script = f.turn(t, StepBookConfirm, token, "1", "")
	requireSaid(t, script, "just taken")
	requireSaid(t, script, "1:30 PM") // nearest tie resolves to the earlier slot
	token = requireStep(t, script, StepBookConfirm)

	script = f.turn(t, StepBookConfirm, token, "1", "")
	requireSaid(t, script, "You're all set")

	var ours []model.Appointment
	for _, a := range f.appts.byID {
		if a.CallerID == "c1" {
			ours = append(ours, a)
		}
	}
	if len(ours) != 1 {
		t.Fatalf("expected 1 booking for caller, got %d", len(ours))
	}
	want := time.Date(2025, 3, 5, 13, 30, 0, 0, time.UTC)
	if !ours[0].Start.Equal(want) {
		t.Fatalf("start = %v, want %v", ours[0].Start, want)
	}
}

func TestYesNoReadsRefusals(t *testing.T) {
	f := newFixture()
	cases := []struct {
		utterance string
		want      intent.Sentiment
	}{
		{"no, that's not right", intent.SentimentNegative},
		{"no that is not correct", intent.SentimentNegative},
		{"not sure", intent.SentimentNegative},
		{"nope", intent.SentimentNegative},
		{"yes please", intent.SentimentAffirmative},
		{"yeah that's right", intent.SentimentAffirmative},
		{"correct", intent.SentimentAffirmative},
		{"I know", intent.SentimentUnknown},
		{"mumble", intent.SentimentUnknown},
	}
	for _, tc := range cases {
		got := f.m.yesNo(context.Background(), TurnInput{Speech: tc.utterance})
		if got != tc.want {
			t.Errorf("yesNo(%q) = %v, want %v", tc.utterance, got, tc.want)
		}
	}
}

func TestRefusalAtBookConfirmIsNotBooked(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}

	script := f.turn(t, StepMenu, "", "1", "")
	token := requireStep(t, script, StepIdentityCheck)
	script = f.turn(t, StepIdentityCheck, token, "1", "")
	token = requireStep(t, script, StepDate)
	script = f.turn(t, StepDate, token, "", "wednesday")
	token = requireStep(t, script, StepDateConfirm)
	script = f.turn(t, StepDateConfirm, token, "1", "")
	token = requireStep(t, script, StepTime)
	script = f.turn(t, StepTime, token, "", "2 pm")
	token = requireStep(t, script, StepBookConfirm)

	script = f.turn(t, StepBookConfirm, token, "", "no, that's not right")
	requireSaid(t, script, "I won't book that")
	requireStep(t, script, StepTime)
	if len(f.appts.byID) != 0 {
		t.Fatalf("expected no booking after a refusal, got %d appointments", len(f.appts.byID))
	}
}

func TestFullyBookedDayOffersAnotherDay(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}

	script := f.turn(t, StepMenu, "", "1", "")
	token := requireStep(t, script, StepIdentityCheck)
	script = f.turn(t, StepIdentityCheck, token, "1", "")
	token = requireStep(t, script, StepDate)
	script = f.turn(t, StepDate, token, "", "wednesday")
	token = requireStep(t, script, StepDateConfirm)
	script = f.turn(t, StepDateConfirm, token, "1", "")
	token = requireStep(t, script, StepTime)

	// The day fills while the caller thinks about a time.
	f.appts.byID["block"] = model.Appointment{
		ID: "block", CallerID: "other",
		Start: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 5, 17, 0, 0, 0, time.UTC),
	}

	script = f.turn(t, StepTime, token, "", "2 pm")
	requireSaid(t, script, "filled up")
	requireSaid(t, script, "another day")
	requireStep(t, script, StepDate)
	if len(f.appts.byID) != 1 {
		t.Fatalf("expected no new booking, got %d appointments", len(f.appts.byID))
	}
}

func TestNoOpeningsInSearchWindowReprompts(t *testing.T) {
	f := newFixture()
	for week := 0; week < 4; week++ {
		id := fmt.Sprintf("block-%d", week)
		day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week)
		f.appts.byID[id] = model.Appointment{
			ID: id, CallerID: "other",
			Start: day.Add(9 * time.Hour),
			End:   day.Add(17 * time.Hour),
		}
	}

	script := f.turn(t, StepDate, "", "", "wednesday")
	requireSaid(t, script, "in the next four weeks")
	requireSaid(t, script, "another day")
	requireStep(t, script, StepDate)
}

func TestSpokenCancelWhenPlansChanged(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}
	f.appts.byID["a1"] = model.Appointment{
		ID: "a1", CallerID: "c1",
		Start: time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC),
	}

	script := f.turn(t, StepMenu, "", "", "I need to cancel, my plans changed")
	requireSaid(t, script, "Do you want to cancel it?")
	requireStep(t, script, StepCancelConfirm)
	s := f.sessions.byPhone[testPhone]
	if s.IntentCounts["cancel"] != 1 {
		t.Fatalf("cancel intent count = %d, want 1", s.IntentCounts["cancel"])
	}
}

func TestMisunderstandingsTransferAfterTwoStrikes(t *testing.T) {
	f := newFixture()

	script := f.turn(t, StepMenu, "", "", "mumble mumble")
	if hasDial(script) {
		t.Fatal("first miss should reprompt, not transfer")
	}
	requireStep(t, script, StepMenu)

	script = f.turn(t, StepMenu, "", "", "static")
	if !hasDial(script) {
		t.Fatal("second consecutive miss should transfer to an operator")
	}

	s := f.sessions.byPhone[testPhone]
	if !s.Forwarded {
		t.Fatal("session should be marked forwarded")
	}
	if s.ForwardedFor == "" {
		t.Fatal("forward reason should be recorded")
	}
	if s.TotalStrikes != 2 {
		t.Fatalf("total strikes = %d, want 2", s.TotalStrikes)
	}
}

func TestUnderstoodInputResetsStrikeSegment(t *testing.T) {
	f := newFixture()

	f.turn(t, StepMenu, "", "", "mumble")
	script := f.turn(t, StepMenu, "", "1", "")
	s := f.sessions.byPhone[testPhone]
	if s.Strikes != 0 {
		t.Fatalf("strikes = %d after understood input, want 0", s.Strikes)
	}
	if s.TotalStrikes != 1 {
		t.Fatalf("total strikes = %d, want 1", s.TotalStrikes)
	}
	token := requireStep(t, script, StepName)

	// Two fresh misses in the new segment transfer the call.
	script = f.turn(t, StepName, token, "", "")
	if hasDial(script) {
		t.Fatal("first miss in segment should reprompt")
	}
	script = f.turn(t, StepName, token, "", "")
	if !hasDial(script) {
		t.Fatal("expected transfer after two misses in the segment")
	}
	if s.TotalStrikes != 3 {
		t.Fatalf("total strikes = %d, want 3", s.TotalStrikes)
	}
}

func TestCancelOnlyAppointment(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}
	f.appts.byID["a1"] = model.Appointment{
		ID:       "a1",
		CallerID: "c1",
		Start:    time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC),
	}

	script := f.turn(t, StepMenu, "", "2", "")
	requireSaid(t, script, "Wednesday, March 5")
	requireSaid(t, script, "2:00 PM")
	token := requireStep(t, script, StepCancelConfirm)

	script = f.turn(t, StepCancelConfirm, token, "1", "")
	requireSaid(t, script, "is cancelled")
	if len(f.appts.byID) != 0 {
		t.Fatalf("expected empty calendar, got %d appointments", len(f.appts.byID))
	}
}

func TestCancelWithNothingBooked(t *testing.T) {
	f := newFixture()

	script := f.turn(t, StepMenu, "", "2", "")
	requireSaid(t, script, "don't have any appointments")
	requireStep(t, script, StepAnythingElse)
}

func TestRescheduleMovesChosenAppointment(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", Phone: testPhone}
	f.appts.byID["a1"] = model.Appointment{
		ID: "a1", CallerID: "c1",
		Start: time.Date(2025, 3, 5, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC),
	}
	f.appts.byID["a2"] = model.Appointment{
		ID: "a2", CallerID: "c1",
		Start: time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 7, 9, 30, 0, 0, time.UTC),
	}

	script := f.turn(t, StepMenu, "", "3", "")
	requireSaid(t, script, "two upcoming appointments")
	token := requireStep(t, script, StepReschedulePick)

	script = f.turn(t, StepReschedulePick, token, "1", "")
	requireSaid(t, script, "current time holds")
	token = requireStep(t, script, StepDate)

	cont, err := DecodeContinuation(token)
	if err != nil {
		t.Fatalf("decode continuation: %v", err)
	}
	if cont.ReplaceID != "a1" {
		t.Fatalf("replace id = %q, want a1", cont.ReplaceID)
	}

	script = f.turn(t, StepDate, token, "", "friday")
	token = requireStep(t, script, StepDateConfirm)
	script = f.turn(t, StepDateConfirm, token, "1", "")
	token = requireStep(t, script, StepTime)
	script = f.turn(t, StepTime, token, "", "10 am")
	requireSaid(t, script, "10:00 AM")
	token = requireStep(t, script, StepBookConfirm)
	script = f.turn(t, StepBookConfirm, token, "1", "")
	requireSaid(t, script, "You're all set")

	if _, ok := f.appts.byID["a1"]; ok {
		t.Fatal("old appointment should be gone")
	}
	if _, ok := f.appts.byID["a2"]; !ok {
		t.Fatal("untouched appointment should survive")
	}
	if len(f.appts.byID) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(f.appts.byID))
	}
	found := false
	for _, a := range f.appts.byID {
		if a.Start.Equal(time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC)) {
			found = true
		}
	}
	if !found {
		t.Fatal("expected new appointment at Friday 10:00")
	}
}

func TestFAQThenGoodbye(t *testing.T) {
	f := newFixture()
	f.faqs.entries = []model.FAQEntry{
		{ID: "f1", Question: "What are your hours", Answer: "We're open Monday through Friday, nine to five."},
		{ID: "f2", Question: "Do I need to bring ID", Answer: "No ID is required."},
	}

	script := f.turn(t, StepMenu, "", "4", "")
	requireSaid(t, script, "Press 1 for")
	token := requireStep(t, script, StepFAQPick)

	script = f.turn(t, StepFAQPick, token, "2", "")
	requireSaid(t, script, "No ID is required.")
	token = requireStep(t, script, StepFAQMore)

	script = f.turn(t, StepFAQMore, token, "2", "")
	token = requireStep(t, script, StepAnythingElse)

	script = f.turn(t, StepAnythingElse, token, "2", "")
	requireSaid(t, script, "Goodbye")
	if !hasHangup(script) {
		t.Fatal("expected hangup")
	}
	s := f.sessions.byPhone[testPhone]
	if s.EndedAt == nil {
		t.Fatal("session should be ended")
	}
}

func TestFAQOperatorEntryTransfers(t *testing.T) {
	f := newFixture()
	f.faqs.entries = []model.FAQEntry{
		{ID: "f1", Question: "What are your hours", Answer: "Nine to five."},
	}

	script := f.turn(t, StepMenu, "", "4", "")
	requireSaid(t, script, "Press 2 to talk to someone")
	token := requireStep(t, script, StepFAQPick)

	script = f.turn(t, StepFAQPick, token, "2", "")
	if !hasDial(script) {
		t.Fatal("expected operator dial")
	}
	s := f.sessions.byPhone[testPhone]
	if !s.Forwarded {
		t.Fatal("session should be marked forwarded")
	}
}

// matchFirstClassifier stands in for a speech backend that always matches
// the first candidate question.
type matchFirstClassifier struct {
	*intent.NoopClassifier
}

func (matchFirstClassifier) MatchQuestion(_ context.Context, _ string, candidates []string) (string, error) {
	return candidates[0], nil
}

func TestFAQSpokenQuestionConfirmsBeforeAnswer(t *testing.T) {
	f := newFixture()
	f.m.classify = matchFirstClassifier{intent.NewNoopClassifier()}
	f.faqs.entries = []model.FAQEntry{
		{ID: "f1", Question: "What are your hours", Answer: "We're open nine to five."},
	}

	script := f.turn(t, StepMenu, "", "4", "")
	token := requireStep(t, script, StepFAQPick)

	script = f.turn(t, StepFAQPick, token, "", "when are you open")
	requireSaid(t, script, "You're asking: What are your hours")
	token = requireStep(t, script, StepFAQConfirm)

	script = f.turn(t, StepFAQConfirm, token, "1", "")
	requireSaid(t, script, "We're open nine to five.")
	requireStep(t, script, StepFAQMore)
}

func TestUnparseableNumberEndsCall(t *testing.T) {
	f := newFixture()

	script := f.m.StartCall(context.Background(), "not-a-number")
	requireSaid(t, script, "unable to help at this time")
	if !hasHangup(script) {
		t.Fatal("expected hangup")
	}
	if len(f.sessions.byPhone) != 0 {
		t.Fatal("no session should be opened for an unparseable number")
	}
}

func TestInvalidMenuDigitIsNotAStrike(t *testing.T) {
	f := newFixture()

	script := f.turn(t, StepMenu, "", "9", "")
	requireSaid(t, script, "not one of the options")
	requireStep(t, script, StepMenu)
	s := f.sessions.byPhone[testPhone]
	if s.TotalStrikes != 0 {
		t.Fatalf("total strikes = %d, want 0", s.TotalStrikes)
	}

	// A misdial between two misunderstandings still resets nothing; only
	// two consecutive misses transfer.
	f.turn(t, StepMenu, "", "", "mumble")
	f.turn(t, StepMenu, "", "8", "")
	script = f.turn(t, StepMenu, "", "", "static")
	if !hasDial(script) {
		t.Fatal("expected transfer after two misunderstandings")
	}
}

func TestKnownCallerCorrectsName(t *testing.T) {
	f := newFixture()
	f.callers.byPhone[testPhone] = model.CallerProfile{ID: "c1", FirstName: "Ada", LastName: "Lovelace", Phone: testPhone}

	script := f.turn(t, StepMenu, "", "1", "")
	requireSaid(t, script, "Ada Lovelace")
	token := requireStep(t, script, StepIdentityCheck)

	script = f.turn(t, StepIdentityCheck, token, "2", "")
	token = requireStep(t, script, StepName)

	script = f.turn(t, StepName, token, "", "Grace Hopper")
	requireSaid(t, script, "I heard Grace Hopper")
	token = requireStep(t, script, StepNameConfirm)

	script = f.turn(t, StepNameConfirm, token, "1", "")
	requireStep(t, script, StepDate)

	caller := f.callers.byPhone[testPhone]
	if caller.ID != "c1" {
		t.Fatalf("caller id = %q, want c1 (no duplicate profile)", caller.ID)
	}
	if caller.FirstName != "Grace" || caller.LastName != "Hopper" {
		t.Fatalf("name = %q %q", caller.FirstName, caller.LastName)
	}
}

func TestCorruptContinuationRestartsAtMenu(t *testing.T) {
	f := newFixture()

	script := f.turn(t, StepBookConfirm, "!!not-a-token!!", "1", "")
	if hasDial(script) {
		t.Fatal("corrupt token should restart, not transfer")
	}
	requireSaid(t, script, "start over")
	requireStep(t, script, StepMenu)
}
