package model

import "time"

// EventDateLayout is the calendar date format used by the event catalog
const EventDateLayout = "2006-01-02"

// Event is a volunteer event offered to students
type Event struct {
	Title       string `json:"title" yaml:"title"`
	Date        string `json:"date" yaml:"date"`
	Category    string `json:"category" yaml:"category"`
	Location    string `json:"location" yaml:"location"`
	Organizer   string `json:"organizer" yaml:"organizer"`
	Contact     string `json:"contact" yaml:"contact"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Day parses the event date. Unparseable dates yield the zero time.
func (e Event) Day() time.Time {
	t, err := time.Parse(EventDateLayout, e.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ref returns the identity of the event used by registrations
func (e Event) Ref() EventRef {
	return EventRef{Title: e.Title, Date: e.Date, Category: e.Category, Contact: e.Contact}
}

// EventRef identifies an event by title, date and category
type EventRef struct {
	Title    string `json:"title"`
	Date     string `json:"date"`
	Category string `json:"category"`
	Contact  string `json:"contact,omitempty"`
}
