package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"dora/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestComposer() *ResponseComposer {
	return NewResponseComposer(NewStaticLocationStore(searchFixture), NewEventCatalog(eventFixture))
}

var composeNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func TestResponseComposer_SingleMatch(t *testing.T) {
	loc := model.LocationRecord{
		Name:               "AI & ML Block",
		Category:           "Academic Block",
		Description:        "Home of the AI and ML department.",
		DirectionalHints:   model.DirectionalHints{Front: "Main Block", Left: "Lawn Area"},
		VoiceHint:          "Walk past the lawn",
		NearbyLandmarks:    []string{"Lawn Area", "Temple"},
		AccessibilityNotes: model.StringList{"Ramp at entrance"},
		Coordinates:        &model.Coordinates{Lat: 10.8289, Lng: 77.0608},
	}

	comp := newTestComposer().Compose(context.Background(), ComposeInput{
		Message: "where is the ai & ml block",
		Intent:  model.IntentResult{Mode: model.ModeCampus},
		Matches: []model.LocationRecord{loc},
		Now:     composeNow,
	})

	require.Equal(t, KindLocalAnswer, comp.Kind)
	assert.Empty(t, comp.Prompt)
	assert.Len(t, comp.Matches, 1)
	for _, want := range []string{
		"**AI & ML Block** - Found!",
		"Home of the AI and ML department.",
		"• **Front**: Main Block",
		"• **Left**: Lawn Area",
		"**Voice Navigation**: Walk past the lawn",
		"**Nearby Landmarks**: Lawn Area, Temple",
		"**Accessibility**: Ramp at entrance",
		"**Category**: Academic Block",
		"10.8289, 77.0608",
	} {
		assert.Contains(t, comp.Text, want)
	}
	assert.NotContains(t, comp.Text, "**Back**")
}

func TestSingleLocationAnswer_Defaults(t *testing.T) {
	text := SingleLocationAnswer(model.LocationRecord{Name: "Temple", Category: "Spiritual", Description: "A small temple."})
	assert.Contains(t, text, "**Nearby Landmarks**: None specified")
	assert.Contains(t, text, "**Accessibility**: Walking")
	assert.NotContains(t, text, "Navigation Directions")
	assert.NotContains(t, text, "Coordinates")
}

func TestResponseComposer_MultipleMatches(t *testing.T) {
	matches := []model.LocationRecord{searchFixture[1], searchFixture[3]}
	comp := newTestComposer().Compose(context.Background(), ComposeInput{
		Message: "academic facility",
		Intent:  model.IntentResult{Mode: model.ModeCampus},
		Matches: matches,
		Now:     composeNow,
	})

	require.Equal(t, KindLocalAnswer, comp.Kind)
	assert.Contains(t, comp.Text, `Found **2 locations** matching "academic facility"`)
	assert.Less(t, strings.Index(comp.Text, "**1. Library**"), strings.Index(comp.Text, "**2. Seminar Hall**"))
	assert.Contains(t, comp.Text, "Which location would you like detailed directions for?")
}

func TestResponseComposer_CampusWithoutMatches(t *testing.T) {
	history := []model.ChatMessage{
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
	}
	comp := newTestComposer().Compose(context.Background(), ComposeInput{
		Message: "where is the swimming pool",
		Intent:  model.IntentResult{Mode: model.ModeCampus},
		History: history,
		Now:     composeNow,
	})

	require.Equal(t, KindDelegate, comp.Kind)
	assert.Empty(t, comp.Text)
	assert.Contains(t, comp.Prompt, `USER QUERY: "where is the swimming pool"`)
	assert.Contains(t, comp.Prompt, `"name": "Seminar Hall"`)
	assert.Contains(t, comp.Prompt, "Current date: Saturday, October 17, 2026")
	assert.Contains(t, comp.Prompt, "user: hi\nassistant: hello")

	assert.Contains(t, comp.FallbackResponse, "**Available Locations** (5 total)")
	assert.Contains(t, comp.FallbackResponse, "Main Gate • Library • Canteen • Seminar Hall • Boys Hostel")
	assert.Contains(t, comp.FallbackResponse, "Entrance • Academic Facility • Food Court • Residence")
}

func TestResponseComposer_VolunteerDelegates(t *testing.T) {
	intent := model.IntentResult{
		Mode:              model.ModeVolunteer,
		Confidence:        4.5,
		MatchedKeywords:   []string{"volunteer", "opportunities"},
		MatchedPatternIDs: []string{"volunteer_pattern_1"},
	}
	history := make([]model.ChatMessage, 10)
	for i := range history {
		history[i] = model.ChatMessage{Role: model.RoleUser, Content: string(rune('a' + i))}
	}

	comp := newTestComposer().Compose(context.Background(), ComposeInput{
		Message: "what volunteer opportunities are there",
		Intent:  intent,
		History: history,
		Now:     composeNow,
	})

	require.Equal(t, KindDelegate, comp.Kind)
	assert.Empty(t, comp.FallbackResponse)
	assert.Contains(t, comp.Prompt, "- Detected Mode: volunteer")
	assert.Contains(t, comp.Prompt, "- Confidence: 4.50")
	assert.Contains(t, comp.Prompt, "- Matched Keywords: volunteer, opportunities")
	assert.Contains(t, comp.Prompt, "- Detected Patterns: volunteer_pattern_1")
	assert.Contains(t, comp.Prompt, `"title": "Beach Cleanup"`)
	// Events are listed by date
	assert.Less(t, strings.Index(comp.Prompt, "Blood Donation Camp"), strings.Index(comp.Prompt, "Tree Plantation Drive"))
	// Only the last six transcript messages are included
	assert.NotContains(t, comp.Prompt, "user: d\n")
	assert.Contains(t, comp.Prompt, "user: e\n")
	assert.Contains(t, comp.Prompt, "user: j\n")
}

func TestResponseComposer_GeneralDelegates(t *testing.T) {
	comp := newTestComposer().Compose(context.Background(), ComposeInput{
		Message: "tell me a joke",
		Intent:  model.IntentResult{Mode: model.ModeGeneral},
		Now:     composeNow,
	})
	assert.Equal(t, KindDelegate, comp.Kind)
	assert.Contains(t, comp.Prompt, "- Detected Patterns: General inquiry")
}

func TestFallbackListing_EmptyStore(t *testing.T) {
	assert.Contains(t, FallbackListing(nil), "still loading campus information")
}

func TestFallbackTable_Response(t *testing.T) {
	fallback := NewFallbackTable(NewEventCatalog(eventFixture))

	t.Run("campus uses composed listing", func(t *testing.T) {
		got := fallback.Response(model.ModeCampus, "where is x", Composition{FallbackResponse: "listing"}, composeNow)
		assert.Equal(t, "listing", got)
	})

	t.Run("campus without listing", func(t *testing.T) {
		got := fallback.Response(model.ModeCampus, "where is x", Composition{}, composeNow)
		assert.Contains(t, got, "couldn't reach my AI service")
	})

	t.Run("volunteer upcoming events", func(t *testing.T) {
		got := fallback.Response(model.ModeVolunteer, "any upcoming events?", Composition{}, composeNow)
		assert.Contains(t, got, "**Blood Donation Camp**")
		assert.Contains(t, got, "**Beach Cleanup**")
	})

	t.Run("volunteer past events only", func(t *testing.T) {
		got := fallback.Response(model.ModeVolunteer, "any upcoming events?", Composition{}, composeNow.AddDate(1, 0, 0))
		assert.NotContains(t, got, "Blood Donation Camp")
	})

	t.Run("volunteer register", func(t *testing.T) {
		got := fallback.Response(model.ModeVolunteer, "how do I join", Composition{}, composeNow)
		assert.Contains(t, got, "• Tree Plantation Drive")
		assert.Contains(t, got, "I want to register for [event name]")
	})

	t.Run("general", func(t *testing.T) {
		got := fallback.Response(model.ModeGeneral, "hello", Composition{}, composeNow)
		assert.Contains(t, got, "Where is the AI & ML Block?")
	})
}
