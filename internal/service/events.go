package service

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"dora/internal/model"
	"dora/internal/utils"

	"go.uber.org/zap"
)

// EventLoader supplies the volunteer event catalog
type EventLoader interface {
	LoadEvents(ctx context.Context) ([]model.Event, error)
}

// EventFilter narrows catalog listings. Now defaults to the current time.
type EventFilter struct {
	Category string
	Upcoming bool
	ThisWeek bool
	Now      time.Time
}

// EventCatalog is the static, read-only list of volunteer events
type EventCatalog struct {
	events []model.Event
}

// NewEventCatalog wraps a pre-loaded event list
func NewEventCatalog(events []model.Event) *EventCatalog {
	return &EventCatalog{events: events}
}

// LoadEventCatalog loads the catalog once at startup. A failed load yields an
// empty catalog.
func LoadEventCatalog(ctx context.Context, loader EventLoader, logger *zap.Logger) *EventCatalog {
	events, err := loader.LoadEvents(ctx)
	if err != nil {
		logger.Error("event catalog unavailable", zap.Error(err))
		return NewEventCatalog(nil)
	}
	logger.Info("event catalog loaded", zap.Int("events", len(events)))
	return NewEventCatalog(events)
}

// All returns every event in catalog order
func (c *EventCatalog) All() []model.Event {
	return c.events
}

// Filter returns matching events sorted by date
func (c *EventCatalog) Filter(f EventFilter) []model.Event {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	today := now.Format(model.EventDateLayout)
	weekOut := now.AddDate(0, 0, 7).Format(model.EventDateLayout)

	out := make([]model.Event, 0, len(c.events))
	for _, e := range c.events {
		if f.Category != "" && !utils.ContainsFold(e.Category, f.Category) {
			continue
		}
		// Dates are YYYY-MM-DD so lexical order is calendar order
		if (f.Upcoming || f.ThisWeek) && e.Date < today {
			continue
		}
		if f.ThisWeek && e.Date > weekOut {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Categories returns the distinct event categories, sorted
func (c *EventCatalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, e := range c.events {
		if _, ok := seen[e.Category]; ok || e.Category == "" {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	sort.Strings(out)
	return out
}

var registerTarget = regexp.MustCompile(`(?i)\b(?:register|sign\s*up|enroll|join|participate)\s+(?:for|to|in)?\s*(?:the\s+)?([a-z0-9][a-z0-9\s&'-]{2,})`)

// FindInMessage resolves the event a free-text message refers to. A title
// contained in the message wins, then a message phrase contained in a title
// ("register for tree plantation"), then, when byCategory is set, a category
// contained in the message.
func (c *EventCatalog) FindInMessage(message string, byCategory bool) (model.Event, bool) {
	msg := utils.Normalize(message)
	if msg == "" {
		return model.Event{}, false
	}

	for _, e := range c.events {
		if t := utils.Normalize(e.Title); t != "" && strings.Contains(msg, t) {
			return e, true
		}
	}

	if m := registerTarget.FindStringSubmatch(msg); m != nil {
		target := strings.TrimSpace(strings.Trim(m[1], ".!?"))
		target = strings.TrimSuffix(target, " event")
		if len(target) >= 4 {
			for _, e := range c.events {
				if strings.Contains(utils.Normalize(e.Title), target) {
					return e, true
				}
			}
		}
	}

	if byCategory {
		for _, e := range c.events {
			if cat := utils.Normalize(e.Category); cat != "" && strings.Contains(msg, cat) {
				return e, true
			}
		}
	}
	return model.Event{}, false
}

// Select resolves a reply to a numbered event list: either the list number
// or a title (fragment).
func (c *EventCatalog) Select(reply string) (model.Event, bool) {
	r := strings.Trim(utils.Normalize(reply), ".!?")
	if n, err := strconv.Atoi(r); err == nil {
		if n >= 1 && n <= len(c.events) {
			return c.events[n-1], true
		}
		return model.Event{}, false
	}
	if e, ok := c.FindInMessage(r, false); ok {
		return e, true
	}
	if len(r) >= 3 {
		for _, e := range c.events {
			if strings.Contains(utils.Normalize(e.Title), r) {
				return e, true
			}
		}
	}
	return model.Event{}, false
}

// Find returns the event with the exact title, ignoring case
func (c *EventCatalog) Find(title string) (model.Event, bool) {
	for _, e := range c.events {
		if strings.EqualFold(e.Title, strings.TrimSpace(title)) {
			return e, true
		}
	}
	return model.Event{}, false
}
