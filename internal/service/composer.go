package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dora/internal/model"
	"dora/internal/utils"
)

// ResponseKind says whether a reply is answered locally or delegated to the LLM
type ResponseKind string

const (
	KindLocalAnswer ResponseKind = "local_answer"
	KindDelegate    ResponseKind = "delegate"
)

// historyWindow is how many recent transcript messages go into a prompt
const historyWindow = 6

// Composition is the composer's decision for one message. Text is set for
// local answers; Prompt and, for campus queries, FallbackResponse for
// delegated ones.
type Composition struct {
	Kind             ResponseKind
	Text             string
	Prompt           string
	FallbackResponse string
	Matches          []model.LocationRecord
}

// ComposeInput is everything the composer looks at for one message
type ComposeInput struct {
	Message string
	Intent  model.IntentResult
	Matches []model.LocationRecord
	History []model.ChatMessage
	Now     time.Time
}

// ResponseComposer turns search results into local answers or grounded LLM prompts
type ResponseComposer struct {
	store   *LocationStore
	catalog *EventCatalog
}

// NewResponseComposer creates a composer over the static location and event data
func NewResponseComposer(store *LocationStore, catalog *EventCatalog) *ResponseComposer {
	return &ResponseComposer{store: store, catalog: catalog}
}

// Compose decides between a local answer and delegation. Only campus
// messages with at least one match are answered locally.
func (c *ResponseComposer) Compose(ctx context.Context, in ComposeInput) Composition {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	if in.Intent.Mode != model.ModeCampus {
		return Composition{Kind: KindDelegate, Prompt: c.volunteerPrompt(in)}
	}

	switch len(in.Matches) {
	case 0:
		all := c.store.All(ctx)
		return Composition{
			Kind:             KindDelegate,
			Prompt:           c.campusPrompt(in, all),
			FallbackResponse: FallbackListing(all),
		}
	case 1:
		return Composition{Kind: KindLocalAnswer, Text: SingleLocationAnswer(in.Matches[0]), Matches: in.Matches}
	default:
		return Composition{Kind: KindLocalAnswer, Text: MultipleLocationAnswer(in.Matches, in.Message), Matches: in.Matches}
	}
}

// SingleLocationAnswer renders the full card for one location
func SingleLocationAnswer(l model.LocationRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏫 **%s** - Found!\n\n", l.Name)
	fmt.Fprintf(&b, "📍 **Description**: %s\n\n", l.Description)

	h := l.DirectionalHints
	dirs := []struct{ label, value string }{
		{"Front", h.Front}, {"Back", h.Back}, {"Left", h.Left}, {"Right", h.Right},
	}
	var lines []string
	for _, d := range dirs {
		if d.value != "" {
			lines = append(lines, fmt.Sprintf("• **%s**: %s", d.label, d.value))
		}
	}
	if len(lines) > 0 {
		b.WriteString("🧭 **Navigation Directions**:\n")
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	if l.VoiceHint != "" {
		fmt.Fprintf(&b, "🎯 **Voice Navigation**: %s\n\n", l.VoiceHint)
	}
	fmt.Fprintf(&b, "📍 **Nearby Landmarks**: %s\n\n", joinOr(l.NearbyLandmarks, "None specified"))
	fmt.Fprintf(&b, "💡 **Accessibility**: %s\n\n", joinOr(l.AccessibilityNotes, "Walking"))
	fmt.Fprintf(&b, "📊 **Category**: %s\n", l.Category)
	if l.Coordinates != nil {
		fmt.Fprintf(&b, "🗺️ **Coordinates**: %g, %g\n", l.Coordinates.Lat, l.Coordinates.Lng)
	}
	fmt.Fprintf(&b, "\n💬 Need more specific directions? Just ask \"How to reach %s from [your location]\"", l.Name)
	return b.String()
}

// MultipleLocationAnswer lists every match and asks the user to pick one
func MultipleLocationAnswer(matches []model.LocationRecord, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏫 Found **%d locations** matching %q:\n\n", len(matches), strings.TrimSpace(query))
	for i, l := range matches {
		fmt.Fprintf(&b, "**%d. %s** - %s\n", i+1, l.Name, l.Category)
		fmt.Fprintf(&b, "   📍 %s\n", utils.Truncate(l.Description, 120))
		if l.VoiceHint != "" {
			fmt.Fprintf(&b, "   🧭 %s\n", utils.Truncate(l.VoiceHint, 80))
		}
		b.WriteString("\n")
	}
	b.WriteString("💡 **Which location would you like detailed directions for?**\n")
	b.WriteString(`Just say "Tell me about [location name]" or ask "How to reach [specific location]"`)
	return b.String()
}

// FallbackListing names every known location and category
func FallbackListing(all []model.LocationRecord) string {
	if len(all) == 0 {
		return "🏫 I'm still loading campus information. Please try again in a moment!"
	}

	names := make([]string, len(all))
	var categories []string
	seen := make(map[string]bool)
	for i, l := range all {
		names[i] = l.Name
		if l.Category != "" && !seen[l.Category] {
			seen[l.Category] = true
			categories = append(categories, l.Category)
		}
	}

	var b strings.Builder
	b.WriteString("🏫 **Campus Navigation Help**\n\n")
	fmt.Fprintf(&b, "🗺️ **Available Locations** (%d total):\n%s\n\n", len(all), strings.Join(names, " • "))
	fmt.Fprintf(&b, "🏢 **Categories Available**:\n%s\n\n", strings.Join(categories, " • "))
	b.WriteString("💡 **Try asking**:\n")
	b.WriteString("• \"Where is the AI & ML Block?\"\n")
	b.WriteString("• \"How to reach the Amenity Centre?\"\n")
	b.WriteString("• \"Find the Open Air Theatre\"\n\n")
	b.WriteString("What specific location are you looking for?")
	return b.String()
}

type promptLocation struct {
	Name        string             `json:"name"`
	Category    string             `json:"category"`
	Description string             `json:"description"`
	Landmarks   []string           `json:"landmarks,omitempty"`
	Coordinates *model.Coordinates `json:"coordinates,omitempty"`
}

func (c *ResponseComposer) campusPrompt(in ComposeInput, all []model.LocationRecord) string {
	locs := make([]promptLocation, len(all))
	for i, l := range all {
		landmarks := l.NearbyLandmarks
		if len(landmarks) > 3 {
			landmarks = landmarks[:3]
		}
		locs[i] = promptLocation{
			Name:        l.Name,
			Category:    l.Category,
			Description: utils.Truncate(l.Description, 150),
			Landmarks:   landmarks,
			Coordinates: l.Coordinates,
		}
	}
	data := promptJSON(locs)

	var b strings.Builder
	b.WriteString("🏫 CAMPUS NAVIGATION ASSISTANT - Sri Eshwar College of Engineering\n\n")
	fmt.Fprintf(&b, "USER QUERY: %q\n\n", in.Message)
	writeContext(&b, in)
	fmt.Fprintf(&b, "CAMPUS DATA CONTEXT:\n%s\n\n", data)
	b.WriteString(`INSTRUCTIONS:
1. No location matched the query exactly; suggest the closest or most relevant locations from the campus data
2. Only mention locations that appear in the campus data
3. Include landmarks, accessibility info and directions when available
4. Be conversational and helpful like a campus tour guide
5. If the place does not exist on campus, say so and list a few that do`)
	return b.String()
}

type promptEvent struct {
	Title     string `json:"title"`
	Date      string `json:"date"`
	Category  string `json:"category"`
	Location  string `json:"location,omitempty"`
	Organizer string `json:"organizer,omitempty"`
	Contact   string `json:"contact,omitempty"`
}

func (c *ResponseComposer) volunteerPrompt(in ComposeInput) string {
	events := c.catalog.Filter(EventFilter{Now: in.Now})
	pe := make([]promptEvent, len(events))
	for i, e := range events {
		pe[i] = promptEvent{e.Title, e.Date, e.Category, e.Location, e.Organizer, e.Contact}
	}
	data := promptJSON(pe)

	patterns := "General inquiry"
	if len(in.Intent.MatchedPatternIDs) > 0 {
		patterns = strings.Join(in.Intent.MatchedPatternIDs, ", ")
	}
	keywords := "none"
	if len(in.Intent.MatchedKeywords) > 0 {
		keywords = strings.Join(in.Intent.MatchedKeywords, ", ")
	}

	var b strings.Builder
	b.WriteString("🙋 VOLUNTEER HUB ASSISTANT - Sri Eshwar College of Engineering (SECE)\n\n")
	fmt.Fprintf(&b, "USER QUERY: %q\n\n", in.Message)
	b.WriteString("CONTEXT ANALYSIS:\n")
	fmt.Fprintf(&b, "- Detected Mode: %s\n", in.Intent.Mode)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", in.Intent.Confidence)
	fmt.Fprintf(&b, "- Matched Keywords: %s\n", keywords)
	fmt.Fprintf(&b, "- Detected Patterns: %s\n\n", patterns)
	writeContext(&b, in)
	fmt.Fprintf(&b, "VOLUNTEER EVENTS:\n%s\n\n", data)
	b.WriteString(`Guidelines:
1. Be conversational, helpful and enthusiastic about volunteering
2. When users ask about events, use only the events listed above
3. Mention dates, locations, organizers and contacts when discussing events
4. If asked about upcoming events, focus on events after today's date
5. If the user wants to register, tell them to say "I want to register for [event name]"
6. For general questions unrelated to campus or volunteering, answer briefly and helpfully`)
	return b.String()
}

// promptJSON renders v for a prompt without HTML escaping ("AI & ML Block")
func promptJSON(v any) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return strings.TrimRight(b.String(), "\n")
}

func writeContext(b *strings.Builder, in ComposeInput) {
	fmt.Fprintf(b, "Current date: %s\n\n", in.Now.Format("Monday, January 2, 2006"))
	history := in.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) == 0 {
		return
	}
	b.WriteString("Recent conversation:\n")
	for _, m := range history {
		fmt.Fprintf(b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\n")
}

func joinOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}
