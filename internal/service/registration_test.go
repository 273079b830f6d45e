package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dora/internal/model"
	"dora/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var eventFixture = []model.Event{
	{Title: "Tree Plantation Drive", Date: "2026-11-08", Category: "Environmental", Location: "Lawn Area", Contact: "nss@sece.ac.in"},
	{Title: "Blood Donation Camp", Date: "2026-10-20", Category: "Health", Location: "Medical Centre"},
	{Title: "Beach Cleanup", Date: "2026-12-05", Category: "Community"},
}

type failingStore struct {
	err error
}

func (f failingStore) FindActive(context.Context, string, string) (*model.EventRegistrationRecord, error) {
	return nil, f.err
}

func (f failingStore) Save(context.Context, *model.EventRegistrationRecord) (string, error) {
	return "", f.err
}

func (f failingStore) List(context.Context, model.RegistrationFilter) ([]model.EventRegistrationRecord, error) {
	return nil, f.err
}

func newTestDialogue(store RegistrationStore) *RegistrationDialogue {
	d := NewRegistrationDialogue(NewEventCatalog(eventFixture), store, zap.NewNop())
	d.now = func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) }
	d.newID = func() string { return "reg-1" }
	return d
}

var formAnswers = []string{"Asha Kumar", "21cs001", "cse", "2nd year", "Asha@Example.com", "+91 98765-43210"}

// fill drives a started dialogue through the whole form
func fill(t *testing.T, d *RegistrationDialogue, state model.RegistrationSession) model.RegistrationSession {
	t.Helper()
	for _, answer := range formAnswers {
		turn, err := d.Advance(context.Background(), "chat-1", state, answer)
		require.NoError(t, err)
		require.NoError(t, turn.Err, answer)
		state = turn.State
	}
	require.Equal(t, model.StageConfirmation, state.Stage)
	return state
}

func TestRegistrationDialogue_FullFlow(t *testing.T) {
	store := repository.NewMemoryRegistrationRepository()
	d := newTestDialogue(store)
	ctx := context.Background()

	turn, ok := d.Start("I want to register for an event")
	require.True(t, ok)
	assert.Equal(t, model.StageEventSelection, turn.State.Stage)
	assert.Contains(t, turn.Reply, "1. **Tree Plantation Drive**")

	turn, err := d.Advance(ctx, "chat-1", turn.State, "2")
	require.NoError(t, err)
	assert.Equal(t, model.StageCollectInfo, turn.State.Stage)
	assert.Equal(t, "Blood Donation Camp", turn.State.TargetEvent.Title)

	state := fill(t, d, turn.State)
	assert.Equal(t, map[model.Field]string{
		model.FieldName:       "Asha Kumar",
		model.FieldRollNumber: "21CS001",
		model.FieldDepartment: "Computer Science and Engineering",
		model.FieldYear:       "2",
		model.FieldEmail:      "asha@example.com",
		model.FieldPhone:      "9876543210",
	}, state.CollectedFields)

	turn, err = d.Advance(ctx, "chat-1", state, "yes")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRegistered, turn.Outcome)
	assert.False(t, turn.State.Active)
	assert.Contains(t, turn.Reply, "Registration ID: reg-1")

	records, err := store.List(ctx, model.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Blood Donation Camp", rec.EventTitle)
	assert.Equal(t, "2026-10-20", rec.EventDate)
	assert.Equal(t, 2, rec.Year)
	assert.Equal(t, model.StatusConfirmed, rec.Status)
	assert.Equal(t, "chat-1", rec.ChatSessionID)
}

func TestRegistrationDialogue_StartWithEvent(t *testing.T) {
	d := newTestDialogue(repository.NewMemoryRegistrationRepository())

	for _, msg := range []string{
		"register for Tree Plantation",
		"I want to register for tree plantation drive",
		"sign up for something environmental",
	} {
		turn, ok := d.Start(msg)
		require.True(t, ok, msg)
		assert.Equal(t, model.StageCollectInfo, turn.State.Stage, msg)
		require.NotNil(t, turn.State.TargetEvent, msg)
		assert.Equal(t, "Tree Plantation Drive", turn.State.TargetEvent.Title, msg)
		assert.Zero(t, turn.State.CurrentFieldIndex)
		assert.Contains(t, turn.Reply, "full name")
	}

	_, ok := d.Start("what events are there")
	assert.False(t, ok)
}

func TestRegistrationDialogue_UnknownEventSelection(t *testing.T) {
	d := newTestDialogue(repository.NewMemoryRegistrationRepository())
	start, _ := d.Start("I want to register")

	for _, reply := range []string{"7", "0", "moon landing"} {
		turn, err := d.Advance(context.Background(), "chat-1", start.State, reply)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalid, turn.Outcome)
		assert.ErrorIs(t, turn.Err, model.ErrNotFound)
		assert.Equal(t, model.StageEventSelection, turn.State.Stage)
		assert.Contains(t, turn.Reply, "3. Beach Cleanup")
	}

	turn, err := d.Advance(context.Background(), "chat-1", start.State, "beach")
	require.NoError(t, err)
	assert.Equal(t, "Beach Cleanup", turn.State.TargetEvent.Title)
}

func TestRegistrationDialogue_InvalidFieldKeepsState(t *testing.T) {
	d := newTestDialogue(repository.NewMemoryRegistrationRepository())
	start, _ := d.Start("register for Tree Plantation")
	turn, err := d.Advance(context.Background(), "chat-1", start.State, "Asha")
	require.NoError(t, err)

	before := turn.State.Clone()
	bad, err := d.Advance(context.Background(), "chat-1", turn.State, "21@cs")
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, bad.Outcome)
	assert.ErrorIs(t, bad.Err, model.ErrValidation)
	assert.Equal(t, "Please enter a valid roll number (alphanumeric only).", bad.Reply)
	assert.Equal(t, before, bad.State)
	assert.Equal(t, before, turn.State, "input state must not be mutated")
}

func TestRegistrationDialogue_Decline(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		wantOutcome RegistrationOutcome
		wantActive  bool
	}{
		{"unclear", "maybe", OutcomeInvalid, true},
		{"plain no", "no", OutcomeCancelled, false},
		{"no with doubt", "no, I'm not sure", OutcomeCancelled, false},
		{"sure alone", "sure", OutcomeInvalid, true},
		{"yes and no", "yes... no wait", OutcomeInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryRegistrationRepository()
			d := newTestDialogue(store)
			start, _ := d.Start("register for Tree Plantation")
			state := fill(t, d, start.State)

			turn, err := d.Advance(context.Background(), "chat-1", state, tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, turn.Outcome)
			assert.Equal(t, tt.wantActive, turn.State.Active)

			records, _ := store.List(context.Background(), model.RegistrationFilter{})
			assert.Empty(t, records)
		})
	}
}

func TestRegistrationDialogue_CancelAnyStage(t *testing.T) {
	d := newTestDialogue(repository.NewMemoryRegistrationRepository())
	start, _ := d.Start("register for Tree Plantation")
	turn, err := d.Advance(context.Background(), "chat-1", start.State, "Cancel")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, turn.Outcome)
	assert.False(t, turn.State.Active)
}

func TestRegistrationDialogue_Duplicate(t *testing.T) {
	store := repository.NewMemoryRegistrationRepository()
	d := newTestDialogue(store)
	ctx := context.Background()

	start, _ := d.Start("register for Tree Plantation")
	turn, err := d.Advance(ctx, "chat-1", fill(t, d, start.State), "yes")
	require.NoError(t, err)
	require.Equal(t, OutcomeRegistered, turn.Outcome)

	d.newID = func() string { return "reg-2" }
	start, _ = d.Start("register for Tree Plantation")
	turn, err = d.Advance(ctx, "chat-2", fill(t, d, start.State), "yes")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, turn.Outcome)
	assert.ErrorIs(t, turn.Err, model.ErrDuplicateRegistration)
	assert.Contains(t, turn.Reply, "reg-1")
	assert.False(t, turn.State.Active)

	records, _ := store.List(ctx, model.RegistrationFilter{})
	assert.Len(t, records, 1)
}

func TestRegistrationDialogue_StorageFailure(t *testing.T) {
	d := newTestDialogue(failingStore{err: model.ErrStorageUnavailable})
	start, _ := d.Start("register for Tree Plantation")

	turn, err := d.Advance(context.Background(), "chat-1", fill(t, d, start.State), "yes")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, turn.Outcome)
	assert.ErrorIs(t, turn.Err, model.ErrStorageUnavailable)
	assert.Contains(t, turn.Reply, "technical error")
	assert.False(t, turn.State.Active)
}

func TestRegistrationDialogue_MalformedState(t *testing.T) {
	d := newTestDialogue(repository.NewMemoryRegistrationRepository())
	ref := eventFixture[0].Ref()

	tests := []struct {
		name  string
		state model.RegistrationSession
	}{
		{"inactive", model.RegistrationSession{}},
		{"unknown stage", model.RegistrationSession{Active: true, Stage: "payment"}},
		{"collecting without event", model.RegistrationSession{Active: true, Stage: model.StageCollectInfo}},
		{"index out of range", model.RegistrationSession{Active: true, Stage: model.StageCollectInfo, TargetEvent: &ref, CurrentFieldIndex: 9}},
		{"fields out of sequence", model.RegistrationSession{
			Active: true, Stage: model.StageCollectInfo, TargetEvent: &ref, CurrentFieldIndex: 1,
			CollectedFields: map[model.Field]string{model.FieldEmail: "a@b.co"},
		}},
		{"confirming incomplete", model.RegistrationSession{
			Active: true, Stage: model.StageConfirmation, TargetEvent: &ref,
			CollectedFields: map[model.Field]string{model.FieldName: "Asha"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Advance(context.Background(), "chat-1", tt.state, "hello")
			assert.ErrorIs(t, err, model.ErrMalformedState)
		})
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		field   model.Field
		raw     string
		want    string
		wantErr bool
	}{
		{model.FieldName, "  Asha Kumar ", "Asha Kumar", false},
		{model.FieldName, "A", "", true},
		{model.FieldRollNumber, "21cs001", "21CS001", false},
		{model.FieldRollNumber, "21@cs", "", true},
		{model.FieldRollNumber, "21 cs", "", true},
		{model.FieldDepartment, "ECE", "Electronics and Communication Engineering", false},
		{model.FieldDepartment, "mechanical", "Mechanical Engineering", false},
		{model.FieldDepartment, "information technlogy", "Information Technology", false},
		{model.FieldDepartment, "astrology", "", true},
		{model.FieldYear, "3", "3", false},
		{model.FieldYear, "1st", "1", false},
		{model.FieldYear, "final year", "4", false},
		{model.FieldYear, "5", "", true},
		{model.FieldEmail, "Asha@Example.COM", "asha@example.com", false},
		{model.FieldEmail, "asha.example.com", "", true},
		{model.FieldPhone, "98765 43210", "9876543210", false},
		{model.FieldPhone, "+919876543210", "9876543210", false},
		{model.FieldPhone, "5876543210", "", true},
		{model.FieldPhone, "98765", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.field)+"/"+tt.raw, func(t *testing.T) {
			got, err := ValidateField(tt.field, tt.raw)
			if tt.wantErr {
				var ve *model.ValidationError
				require.True(t, errors.As(err, &ve))
				assert.Equal(t, tt.field, ve.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventCatalog_Filter(t *testing.T) {
	catalog := NewEventCatalog(eventFixture)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	titles := func(events []model.Event) []string {
		out := make([]string, len(events))
		for i, e := range events {
			out[i] = e.Title
		}
		return out
	}

	assert.Equal(t, []string{"Blood Donation Camp", "Tree Plantation Drive", "Beach Cleanup"},
		titles(catalog.Filter(EventFilter{Now: now})))
	assert.Equal(t, []string{"Blood Donation Camp"},
		titles(catalog.Filter(EventFilter{ThisWeek: true, Now: now})))
	assert.Equal(t, []string{"Tree Plantation Drive", "Beach Cleanup"},
		titles(catalog.Filter(EventFilter{Upcoming: true, Now: now.AddDate(0, 0, 7)})))
	assert.Equal(t, []string{"Beach Cleanup"},
		titles(catalog.Filter(EventFilter{Category: "COMMUN", Now: now})))
	assert.Equal(t, []string{"Community", "Environmental", "Health"}, catalog.Categories())
}

func TestEventCatalog_Select(t *testing.T) {
	catalog := NewEventCatalog(eventFixture)

	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"1", "Tree Plantation Drive", true},
		{"3.", "Beach Cleanup", true},
		{"4", "", false},
		{"Blood Donation Camp", "Blood Donation Camp", true},
		{"blood", "Blood Donation Camp", true},
		{"xy", "", false},
	}
	for _, tt := range tests {
		got, ok := catalog.Select(tt.reply)
		assert.Equal(t, tt.ok, ok, tt.reply)
		assert.Equal(t, tt.want, got.Title, tt.reply)
	}
}
