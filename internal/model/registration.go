package model

import "time"

// Field names a registration form field
type Field string

const (
	FieldName       Field = "name"
	FieldRollNumber Field = "rollNumber"
	FieldDepartment Field = "department"
	FieldYear       Field = "year"
	FieldEmail      Field = "email"
	FieldPhone      Field = "phone"
)

// RegistrationFields is the fixed order in which form fields are collected
var RegistrationFields = []Field{FieldName, FieldRollNumber, FieldDepartment, FieldYear, FieldEmail, FieldPhone}

// Stage is the position of a registration dialogue
type Stage string

const (
	StageEventSelection Stage = "event_selection"
	StageCollectInfo    Stage = "collect_info"
	StageConfirmation   Stage = "confirmation"
)

// RegistrationSession is one in-progress registration dialogue. The zero
// value is an inactive dialogue.
type RegistrationSession struct {
	Active            bool             `json:"active"`
	TargetEvent       *EventRef        `json:"targetEvent,omitempty"`
	CurrentFieldIndex int              `json:"currentFieldIndex"`
	CollectedFields   map[Field]string `json:"collectedFields,omitempty"`
	Stage             Stage            `json:"stage,omitempty"`
}

// Clone returns a deep copy so transitions never alias the caller's state
func (s RegistrationSession) Clone() RegistrationSession {
	out := s
	if s.TargetEvent != nil {
		ev := *s.TargetEvent
		out.TargetEvent = &ev
	}
	if s.CollectedFields != nil {
		out.CollectedFields = make(map[Field]string, len(s.CollectedFields))
		for k, v := range s.CollectedFields {
			out.CollectedFields[k] = v
		}
	}
	return out
}

// RegistrationStatus is the lifecycle state of a stored registration
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
)

// StudentInfo is the validated form snapshot
type StudentInfo struct {
	Name       string `json:"name" db:"student_name"`
	RollNumber string `json:"rollNumber" db:"roll_number"`
	Department string `json:"department" db:"department"`
	Year       int    `json:"year" db:"year"`
	Email      string `json:"email" db:"email"`
	Phone      string `json:"phone" db:"phone"`
}

// EventRegistrationRecord is a persisted registration
type EventRegistrationRecord struct {
	ID            string             `json:"registrationId" db:"registration_id"`
	EventTitle    string             `json:"eventTitle" db:"event_title"`
	EventDate     string             `json:"eventDate" db:"event_date"`
	EventCategory string             `json:"eventCategory" db:"event_category"`
	StudentInfo   `json:"studentInfo"`
	Status        RegistrationStatus `json:"status" db:"status"`
	ChatSessionID string             `json:"chatSessionId,omitempty" db:"chat_session_id"`
	RegisteredAt  time.Time          `json:"registrationDate" db:"registered_at"`
}

// RegistrationFilter narrows registration listings. Empty fields match all.
type RegistrationFilter struct {
	SessionID  string
	RollNumber string
	EventTitle string
}
