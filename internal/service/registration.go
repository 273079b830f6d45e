package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"dora/internal/metrics"
	"dora/internal/model"
	"dora/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistrationStore persists event registrations
type RegistrationStore interface {
	// FindActive returns the non-cancelled registration for the pair, or nil
	FindActive(ctx context.Context, eventTitle, rollNumber string) (*model.EventRegistrationRecord, error)
	Save(ctx context.Context, rec *model.EventRegistrationRecord) (string, error)
	List(ctx context.Context, filter model.RegistrationFilter) ([]model.EventRegistrationRecord, error)
}

// Departments accepted by the registration form
var Departments = []string{
	"Computer Science and Engineering",
	"Information Technology",
	"Electronics and Communication Engineering",
	"Electrical and Electronics Engineering",
	"Mechanical Engineering",
	"Civil Engineering",
	"Automobile Engineering",
	"Biomedical Engineering",
	"AI and Data Science",
	"Cyber Security",
}

var departmentAliases = map[string]string{
	"cse":   "Computer Science and Engineering",
	"cs":    "Computer Science and Engineering",
	"it":    "Information Technology",
	"ece":   "Electronics and Communication Engineering",
	"eee":   "Electrical and Electronics Engineering",
	"mech":  "Mechanical Engineering",
	"civil": "Civil Engineering",
	"auto":  "Automobile Engineering",
	"bme":   "Biomedical Engineering",
	"aids":  "AI and Data Science",
	"ai&ds": "AI and Data Science",
	"ai ds": "AI and Data Science",
	"cyber": "Cyber Security",
}

var (
	registrationTrigger = regexp.MustCompile(`(?i)\b(?:register|signup|sign\s+up|join|participate|interested\s+in|enroll|book)\b`)
	rollNumberRe        = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	emailRe             = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe             = regexp.MustCompile(`^[6-9]\d{9}$`)
	yearRe              = regexp.MustCompile(`(?i)^([1-4])(?:st|nd|rd|th)?(?:\s+year)?$`)
	affirmRe            = regexp.MustCompile(`(?i)\b(?:yes|y|yeah|yep|confirm|confirmed)\b`)
	declineRe           = regexp.MustCompile(`(?i)\b(?:no|n|nope|cancel|stop)\b`)
)

var yearWords = map[string]string{"first": "1", "second": "2", "third": "3", "fourth": "4", "final": "4"}

// RegistrationOutcome describes what a dialogue turn achieved
type RegistrationOutcome string

const (
	OutcomeStarted    RegistrationOutcome = "started"
	OutcomeProgress   RegistrationOutcome = "progress"
	OutcomeInvalid    RegistrationOutcome = "invalid"
	OutcomeRegistered RegistrationOutcome = "registered"
	OutcomeDuplicate  RegistrationOutcome = "duplicate"
	OutcomeCancelled  RegistrationOutcome = "cancelled"
	OutcomeFailed     RegistrationOutcome = "failed"
)

// RegistrationTurn is the result of feeding one message to the dialogue. The
// caller persists State; an inactive State means the dialogue is over.
type RegistrationTurn struct {
	State   model.RegistrationSession
	Reply   string
	Outcome RegistrationOutcome
	Record  *model.EventRegistrationRecord
	Err     error
}

// RegistrationDialogue drives the per-session registration form. Transitions
// take the current state by value and return the next one; nothing is
// mutated in place.
type RegistrationDialogue struct {
	catalog *EventCatalog
	store   RegistrationStore
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
}

// NewRegistrationDialogue creates a dialogue over the given catalog and store
func NewRegistrationDialogue(catalog *EventCatalog, store RegistrationStore, logger *zap.Logger) *RegistrationDialogue {
	return &RegistrationDialogue{
		catalog: catalog,
		store:   store,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// HasIntent reports whether message asks to register for something
func (d *RegistrationDialogue) HasIntent(message string) bool {
	return registrationTrigger.MatchString(message)
}

// Start opens a dialogue for a registration-intent message. ok is false when
// the message carries no registration intent. A resolved event skips event
// selection.
func (d *RegistrationDialogue) Start(message string) (turn RegistrationTurn, ok bool) {
	if !d.HasIntent(message) {
		return RegistrationTurn{}, false
	}

	if ev, found := d.catalog.FindInMessage(message, true); found {
		ref := ev.Ref()
		return RegistrationTurn{
			State: model.RegistrationSession{
				Active:          true,
				TargetEvent:     &ref,
				Stage:           model.StageCollectInfo,
				CollectedFields: map[model.Field]string{},
			},
			Reply:   fieldPrompt(model.FieldName, ref),
			Outcome: OutcomeStarted,
		}, true
	}

	return RegistrationTurn{
		State:   model.RegistrationSession{Active: true, Stage: model.StageEventSelection},
		Reply:   d.eventSelectionPrompt(),
		Outcome: OutcomeStarted,
	}, true
}

// Advance feeds a message to an active dialogue. The returned error is only
// set for malformed state; the caller should then clear the dialogue.
func (d *RegistrationDialogue) Advance(ctx context.Context, chatSessionID string, state model.RegistrationSession, message string) (RegistrationTurn, error) {
	if !state.Active {
		return RegistrationTurn{}, fmt.Errorf("%w: dialogue is not active", model.ErrMalformedState)
	}
	next := state.Clone()

	if isCancel(message) {
		metrics.Registrations.WithLabelValues(string(OutcomeCancelled)).Inc()
		return RegistrationTurn{
			Reply:   "❌ Registration cancelled. Feel free to ask about other volunteer opportunities!",
			Outcome: OutcomeCancelled,
		}, nil
	}

	switch state.Stage {
	case model.StageEventSelection:
		return d.selectEvent(next, message), nil
	case model.StageCollectInfo:
		if err := checkCollecting(next); err != nil {
			return RegistrationTurn{}, err
		}
		return d.collect(next, message), nil
	case model.StageConfirmation:
		if err := checkConfirming(next); err != nil {
			return RegistrationTurn{}, err
		}
		return d.confirm(ctx, chatSessionID, next, message), nil
	default:
		return RegistrationTurn{}, fmt.Errorf("%w: unknown stage %q", model.ErrMalformedState, state.Stage)
	}
}

func (d *RegistrationDialogue) selectEvent(state model.RegistrationSession, message string) RegistrationTurn {
	ev, ok := d.catalog.Select(message)
	if !ok {
		return RegistrationTurn{
			State:   state,
			Reply:   "I couldn't find that event. Please choose from these available events:\n\n" + d.numberedTitles(),
			Outcome: OutcomeInvalid,
			Err:     fmt.Errorf("%w: event %q", model.ErrNotFound, message),
		}
	}

	ref := ev.Ref()
	state.TargetEvent = &ref
	state.Stage = model.StageCollectInfo
	state.CurrentFieldIndex = 0
	state.CollectedFields = map[model.Field]string{}
	return RegistrationTurn{State: state, Reply: fieldPrompt(model.FieldName, ref), Outcome: OutcomeProgress}
}

func (d *RegistrationDialogue) collect(state model.RegistrationSession, message string) RegistrationTurn {
	field := model.RegistrationFields[state.CurrentFieldIndex]
	value, err := ValidateField(field, message)
	if err != nil {
		var ve *model.ValidationError
		reply := err.Error()
		if errors.As(err, &ve) {
			reply = ve.Message
		}
		return RegistrationTurn{State: state, Reply: reply, Outcome: OutcomeInvalid, Err: err}
	}

	if state.CollectedFields == nil {
		state.CollectedFields = map[model.Field]string{}
	}
	state.CollectedFields[field] = value
	state.CurrentFieldIndex++

	if state.CurrentFieldIndex < len(model.RegistrationFields) {
		next := model.RegistrationFields[state.CurrentFieldIndex]
		return RegistrationTurn{State: state, Reply: fieldPrompt(next, *state.TargetEvent), Outcome: OutcomeProgress}
	}

	state.Stage = model.StageConfirmation
	return RegistrationTurn{State: state, Reply: d.confirmationPrompt(state), Outcome: OutcomeProgress}
}

func (d *RegistrationDialogue) confirm(ctx context.Context, chatSessionID string, state model.RegistrationSession, message string) RegistrationTurn {
	ev := *state.TargetEvent
	f := state.CollectedFields

	affirmed, declined := affirmRe.MatchString(message), declineRe.MatchString(message)
	switch {
	case affirmed && !declined:
	case declined && !affirmed:
		metrics.Registrations.WithLabelValues(string(OutcomeCancelled)).Inc()
		return RegistrationTurn{
			Reply:   "❌ Registration cancelled. Feel free to ask about other volunteer opportunities!",
			Outcome: OutcomeCancelled,
		}
	default:
		return RegistrationTurn{
			State:   state,
			Reply:   `Please reply with "yes" to confirm your registration or "no" to cancel.`,
			Outcome: OutcomeInvalid,
		}
	}

	existing, err := d.store.FindActive(ctx, ev.Title, f[model.FieldRollNumber])
	if err != nil {
		return d.failed(ev, err)
	}
	if existing != nil {
		return d.duplicate(ev, *existing)
	}

	year, _ := strconv.Atoi(f[model.FieldYear])
	rec := &model.EventRegistrationRecord{
		ID:            d.newID(),
		EventTitle:    ev.Title,
		EventDate:     ev.Date,
		EventCategory: ev.Category,
		StudentInfo: model.StudentInfo{
			Name:       f[model.FieldName],
			RollNumber: f[model.FieldRollNumber],
			Department: f[model.FieldDepartment],
			Year:       year,
			Email:      f[model.FieldEmail],
			Phone:      f[model.FieldPhone],
		},
		Status:        model.StatusConfirmed,
		ChatSessionID: chatSessionID,
		RegisteredAt:  d.now().UTC(),
	}

	id, err := d.store.Save(ctx, rec)
	if err != nil {
		// Lost a race with a concurrent registration for the same pair
		var dup *model.DuplicateRegistrationError
		if errors.As(err, &dup) {
			return d.duplicate(ev, dup.Existing)
		}
		return d.failed(ev, err)
	}
	rec.ID = id

	d.logger.Info("registration saved",
		zap.String("registration_id", rec.ID),
		zap.String("event", rec.EventTitle),
		zap.String("session_id", chatSessionID),
	)
	metrics.Registrations.WithLabelValues(string(OutcomeRegistered)).Inc()

	return RegistrationTurn{
		Reply:   confirmationMessage(rec) + "\n\nFor any queries, contact: " + contactOrDefault(ev.Contact),
		Outcome: OutcomeRegistered,
		Record:  rec,
	}
}

func (d *RegistrationDialogue) duplicate(ev model.EventRef, existing model.EventRegistrationRecord) RegistrationTurn {
	metrics.Registrations.WithLabelValues(string(OutcomeDuplicate)).Inc()
	return RegistrationTurn{
		Reply: fmt.Sprintf("❌ You are already registered for %q.\n\nRegistration ID: %s\nIf you need to make changes, please contact %s",
			ev.Title, existing.ID, contactOrDefault(ev.Contact)),
		Outcome: OutcomeDuplicate,
		Record:  &existing,
		Err:     &model.DuplicateRegistrationError{Existing: existing},
	}
}

func (d *RegistrationDialogue) failed(ev model.EventRef, err error) RegistrationTurn {
	d.logger.Error("registration storage failed", zap.String("event", ev.Title), zap.Error(err))
	metrics.Registrations.WithLabelValues(string(OutcomeFailed)).Inc()
	return RegistrationTurn{
		Reply:   "❌ Registration failed due to a technical error. Please try again later.",
		Outcome: OutcomeFailed,
		Err:     err,
	}
}

// isCancel matches an explicit request to abandon the form at any stage
func isCancel(message string) bool {
	switch strings.Trim(utils.Normalize(message), ".!") {
	case "cancel", "stop", "cancel registration", "quit":
		return true
	}
	return false
}

func checkCollecting(s model.RegistrationSession) error {
	if s.TargetEvent == nil {
		return fmt.Errorf("%w: collecting without an event", model.ErrMalformedState)
	}
	if s.CurrentFieldIndex < 0 || s.CurrentFieldIndex >= len(model.RegistrationFields) {
		return fmt.Errorf("%w: field index %d", model.ErrMalformedState, s.CurrentFieldIndex)
	}
	for i, f := range model.RegistrationFields {
		_, has := s.CollectedFields[f]
		if has != (i < s.CurrentFieldIndex) {
			return fmt.Errorf("%w: field %s out of sequence at index %d", model.ErrMalformedState, f, s.CurrentFieldIndex)
		}
	}
	if len(s.CollectedFields) != s.CurrentFieldIndex {
		return fmt.Errorf("%w: unknown collected fields", model.ErrMalformedState)
	}
	return nil
}

func checkConfirming(s model.RegistrationSession) error {
	if s.TargetEvent == nil {
		return fmt.Errorf("%w: confirming without an event", model.ErrMalformedState)
	}
	for _, f := range model.RegistrationFields {
		if _, ok := s.CollectedFields[f]; !ok {
			return fmt.Errorf("%w: confirming without %s", model.ErrMalformedState, f)
		}
	}
	return nil
}

// ValidateField checks and normalizes one form answer
func ValidateField(field model.Field, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	invalid := func(msg string) (string, error) {
		return "", &model.ValidationError{Field: field, Message: msg}
	}

	switch field {
	case model.FieldName:
		if n := utf8.RuneCountInString(v); n < 2 || n > 100 {
			return invalid("Please enter a valid name (2-100 characters).")
		}
		return v, nil

	case model.FieldRollNumber:
		if !rollNumberRe.MatchString(v) {
			return invalid("Please enter a valid roll number (alphanumeric only).")
		}
		return strings.ToUpper(v), nil

	case model.FieldDepartment:
		if dept, ok := matchDepartment(v); ok {
			return dept, nil
		}
		lines := make([]string, len(Departments))
		for i, d := range Departments {
			lines[i] = fmt.Sprintf("%d. %s", i+1, d)
		}
		return invalid("Please choose from these departments:\n" + strings.Join(lines, "\n"))

	case model.FieldYear:
		lower := strings.ToLower(v)
		if w, ok := yearWords[strings.TrimSuffix(lower, " year")]; ok {
			return w, nil
		}
		if m := yearRe.FindStringSubmatch(lower); m != nil {
			return m[1], nil
		}
		return invalid("Please enter a valid year (1-4).")

	case model.FieldEmail:
		if !emailRe.MatchString(v) {
			return invalid("Please enter a valid email address.")
		}
		return strings.ToLower(v), nil

	case model.FieldPhone:
		digits := strings.NewReplacer(" ", "", "-", "").Replace(v)
		digits = strings.TrimPrefix(digits, "+91")
		if !phoneRe.MatchString(digits) {
			return invalid("Please enter a valid 10-digit Indian mobile number.")
		}
		return digits, nil
	}
	return "", fmt.Errorf("%w: unknown field %q", model.ErrMalformedState, field)
}

func matchDepartment(v string) (string, bool) {
	q := utils.Normalize(v)
	if q == "" {
		return "", false
	}
	for _, d := range Departments {
		if strings.EqualFold(d, q) {
			return d, true
		}
	}
	if d, ok := departmentAliases[q]; ok {
		return d, true
	}
	if len(q) >= 3 {
		for _, d := range Departments {
			ld := strings.ToLower(d)
			if strings.Contains(ld, q) || strings.Contains(q, ld) {
				return d, true
			}
		}
	}
	for _, d := range Departments {
		if utils.Similarity(strings.ToLower(d), q) >= utils.DefaultSimilarityThreshold {
			return d, true
		}
	}
	return "", false
}

func fieldPrompt(field model.Field, ev model.EventRef) string {
	switch field {
	case model.FieldName:
		return fmt.Sprintf("Great! I'll help you register for %q.\n\nFirst, please tell me your full name:", ev.Title)
	case model.FieldRollNumber:
		return "Thank you! Now, please provide your roll number:"
	case model.FieldDepartment:
		return "Please tell me your department:"
	case model.FieldYear:
		return "What year are you currently in? (1st, 2nd, 3rd, or 4th year):"
	case model.FieldEmail:
		return "Please provide your email address for updates:"
	case model.FieldPhone:
		return "Finally, please provide your mobile number:"
	}
	return "Please provide the requested information:"
}

func (d *RegistrationDialogue) eventSelectionPrompt() string {
	events := d.catalog.All()
	if len(events) == 0 {
		return "I'd be happy to help you register, but there are no volunteer events open right now. Please check back later!"
	}
	var b strings.Builder
	b.WriteString("I'd be happy to help you register for a volunteer event! Here are the available opportunities:\n\n")
	for i, e := range events {
		fmt.Fprintf(&b, "%d. **%s**\n   📅 %s\n   📍 %s\n   🏷️ %s\n\n", i+1, e.Title, e.Date, e.Location, e.Category)
	}
	b.WriteString("Please tell me which event you'd like to register for:")
	return b.String()
}

func (d *RegistrationDialogue) numberedTitles() string {
	events := d.catalog.All()
	lines := make([]string, len(events))
	for i, e := range events {
		lines[i] = fmt.Sprintf("%d. %s", i+1, e.Title)
	}
	return strings.Join(lines, "\n")
}

func (d *RegistrationDialogue) confirmationPrompt(s model.RegistrationSession) string {
	ev := *s.TargetEvent
	location := ""
	if full, ok := d.catalog.Find(ev.Title); ok {
		location = full.Location
	}
	f := s.CollectedFields
	return fmt.Sprintf("Please confirm your registration details:\n\n"+
		"**Event:** %s\n**Date:** %s\n**Location:** %s\n\n"+
		"**Your Details:**\nName: %s\nRoll Number: %s\nDepartment: %s\nYear: %s\nEmail: %s\nPhone: %s\n\n"+
		`Is this information correct? Reply "yes" to confirm or "no" to cancel.`,
		ev.Title, ev.Date, location,
		f[model.FieldName], f[model.FieldRollNumber], f[model.FieldDepartment],
		f[model.FieldYear], f[model.FieldEmail], f[model.FieldPhone])
}

func confirmationMessage(r *model.EventRegistrationRecord) string {
	return fmt.Sprintf("✅ Registration Confirmed!\n\n"+
		"Event: %s\nStudent: %s\nRoll Number: %s\nDepartment: %s\nYear: %d\nRegistration ID: %s\n\n"+
		"You will receive further updates on your registered email: %s",
		r.EventTitle, r.Name, r.RollNumber, r.Department, r.Year, r.ID, r.Email)
}

func contactOrDefault(contact string) string {
	if contact == "" {
		return "the event organizer"
	}
	return contact
}
