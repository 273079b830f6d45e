package service

import (
	"fmt"
	"strings"
	"time"

	"dora/internal/model"
)

// FallbackTable supplies canned replies, keyed by mode, for when the text
// completion service fails
type FallbackTable struct {
	catalog *EventCatalog
}

// NewFallbackTable creates a fallback table over the event catalog
func NewFallbackTable(catalog *EventCatalog) *FallbackTable {
	return &FallbackTable{catalog: catalog}
}

// Response picks the canned reply for a failed delegation
func (f *FallbackTable) Response(mode model.Mode, message string, comp Composition, now time.Time) string {
	switch mode {
	case model.ModeCampus:
		if comp.FallbackResponse != "" {
			return comp.FallbackResponse
		}
		return "🏫 I couldn't reach my AI service right now. You can ask about buildings like 'Main Block', 'AI & ML Block', 'Amenity Centre', or facilities like 'canteen' and 'library'."
	case model.ModeVolunteer:
		return f.volunteer(message, now)
	default:
		return "I'm having trouble connecting to my AI service right now, but I'm still here to help! You can:\n\n" +
			"• Ask where a campus building is, like \"Where is the AI & ML Block?\"\n" +
			"• Ask about upcoming volunteer events\n" +
			"• Register for events by saying \"I want to register for [event name]\""
	}
}

func (f *FallbackTable) volunteer(message string, now time.Time) string {
	lower := strings.ToLower(message)

	if strings.Contains(lower, "upcoming") || strings.Contains(lower, "event") {
		upcoming := f.catalog.Filter(EventFilter{Upcoming: true, Now: now})
		if len(upcoming) > 0 {
			if len(upcoming) > 3 {
				upcoming = upcoming[:3]
			}
			var b strings.Builder
			b.WriteString("Here are the upcoming volunteer events at SECE:\n\n")
			for _, e := range upcoming {
				fmt.Fprintf(&b, "📅 **%s**\nDate: %s\nLocation: %s\nOrganizer: %s\nContact: %s\n\n",
					e.Title, e.Date, e.Location, e.Organizer, e.Contact)
			}
			b.WriteString("For registration or more details, contact the respective organizers!")
			return b.String()
		}
	}

	if strings.Contains(lower, "register") || strings.Contains(lower, "join") {
		events := f.catalog.All()
		if len(events) > 3 {
			events = events[:3]
		}
		var b strings.Builder
		b.WriteString("I'd love to help you register for volunteer events! To register, please say \"I want to register for [event name]\" and I'll guide you through the process.\n\nAvailable events:\n")
		for _, e := range events {
			fmt.Fprintf(&b, "• %s\n", e.Title)
		}
		return strings.TrimRight(b.String(), "\n")
	}

	return "I'm having trouble connecting to my AI service right now, but I'm still here to help! You can:\n\n" +
		"• Ask about upcoming volunteer events\n" +
		"• Register for events by saying \"I want to register for [event name]\"\n" +
		"• Get event details and contact information\n\n" +
		"Try asking me about specific categories like \"environmental\", \"health\", or \"educational\" volunteering opportunities."
}
