package service

import (
	"fmt"
	"regexp"
	"strings"

	"dora/internal/model"
)

// PatternBonus is added to the confidence of a mode whose pattern matched
const PatternBonus = 2.0

// KeywordGroup is a labelled list of phrases that signal a mode
type KeywordGroup struct {
	Label    string
	Keywords []string
}

var campusKeywords = []KeywordGroup{
	{"locations", []string{
		"main gate", "main block", "ai & ml block", "ai ml block", "artificial intelligence",
		"amenity centre", "amenity center", "open air theatre", "open air theater",
		"temple", "atm", "lawn area", "transport facility", "reception", "office",
		"girls hostel", "boys hostel", "mech block", "medical centre", "medical center",
		"ncc block", "chat corner", "mario", "xerox centre", "xerox center", "dining",
	}},
	{"navigation", []string{
		"where is", "how to reach", "find", "locate", "located", "direction", "directions",
		"way to", "path to", "route to", "navigate to", "go to", "get to",
		"show me", "take me to", "guide me to", "help me find", "next to", "opposite",
	}},
	{"facilities", []string{
		"canteen", "library", "parking", "washroom", "restroom", "toilet",
		"elevator", "lift", "stairs", "entrance", "exit", "gate", "hostel",
		"classroom", "lab", "laboratory", "auditorium", "hall", "accessibility",
	}},
	{"academic", []string{
		"department", "block", "building", "faculty", "office", "admin",
		"computer science", "mechanical", "civil", "electrical", "ece",
		"cse", "it", "information technology", "engineering",
	}},
	{"campus", []string{
		"campus", "college", "sri eshwar", "sece", "kinathukadavu",
		"coimbatore", "campus map", "campus tour", "campus guide",
	}},
}

var volunteerKeywords = []KeywordGroup{
	{"events", []string{
		"event", "events", "volunteer", "volunteering", "opportunity", "opportunities",
		"activity", "activities", "program", "programs", "initiative", "initiatives",
		"seminar", "tree plantation", "blood donation",
	}},
	{"actions", []string{
		"join", "participate", "register", "registration", "sign up", "enroll", "apply",
		"help", "contribute", "serve", "assist", "support", "donate", "organize",
	}},
	{"categories", []string{
		"social", "environmental", "educational", "community", "charity",
		"fundraising", "awareness", "campaign", "drive", "workshop",
	}},
	{"time", []string{
		"upcoming", "today", "tomorrow", "this week", "next week",
		"weekend", "schedule", "calendar", "when", "time",
	}},
}

var campusPatterns = []string{
	`where\s+is\s+(?:the\s+)?[\w\s&]+?(?:block|building|center|centre|gate|theatre|theater)`,
	`how\s+to\s+(?:reach|get\s+to|find)\s+\S`,
	`(?:directions?|route|path)\s+to\s+\S`,
	`show\s+me\s+(?:the\s+)?(?:way\s+to\s+)?[\w\s&]+?(?:block|building|center|centre)`,
	`sri\s+eshwar|\bsece\b|campus\s+map|college\s+map`,
	`\bai\s*&?\s*ml\b|artificial\s+intelligence|machine\s+learning`,
	`where\s+is\s+(?:the\s+)?[a-z]`,
	`location\s+of\s+[a-z]`,
	`\bway\s+to\s+[a-z]`,
}

var volunteerPatterns = []string{
	`volunteer(?:ing)?\s+(?:opportunit(?:y|ies)|events?)`,
	`(?:upcoming|next|this\s+week)\s+(?:events?|volunteer|activit(?:y|ies))`,
	`(?:register|sign\s+up|join)\s+(?:for\s+)?(?:events?|volunteer|activit)`,
	`what\s+(?:volunteer|events|activities)\s+(?:are\s+)?(?:available|happening)`,
	`volunteer\s+(?:for|in|at)\s+[a-z]`,
	`\bevents?\s+(?:for|about|related\s+to)\s+[a-z]`,
	`register\s+(?:for|to)\s+[a-z]`,
	`join\s+[a-z\s]+?\s+(?:event|activity|program)`,
}

type keyword struct {
	phrase string
	weight float64
	re     *regexp.Regexp
}

type pattern struct {
	id string
	re *regexp.Regexp
}

type modeTable struct {
	mode     model.Mode
	keywords []keyword
	patterns []pattern
}

// IntentClassifier scores a message against the campus and volunteer
// keyword tables and their high-confidence patterns. It is stateless after
// construction and safe for concurrent use.
type IntentClassifier struct {
	campus    modeTable
	volunteer modeTable
}

// NewIntentClassifier creates a classifier with the built-in tables
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		campus:    buildTable(model.ModeCampus, campusKeywords, campusPatterns),
		volunteer: buildTable(model.ModeVolunteer, volunteerKeywords, volunteerPatterns),
	}
}

func buildTable(mode model.Mode, groups []KeywordGroup, patterns []string) modeTable {
	t := modeTable{mode: mode}
	for _, g := range groups {
		for _, kw := range g.Keywords {
			t.keywords = append(t.keywords, keyword{
				phrase: kw,
				weight: 1 + float64(len(kw))/10,
				re:     regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`),
			})
		}
	}
	for i, p := range patterns {
		t.patterns = append(t.patterns, pattern{
			id: fmt.Sprintf("%s_pattern_%d", mode, i+1),
			re: regexp.MustCompile(`(?i)` + p),
		})
	}
	return t
}

type tableScore struct {
	score    float64
	keywords []string
	patterns []string
}

func (t modeTable) score(msg string) tableScore {
	var s tableScore
	seen := make(map[string]bool)
	// A phrase listed in several groups scores once per group
	for _, kw := range t.keywords {
		if !kw.re.MatchString(msg) {
			continue
		}
		s.score += kw.weight
		if !seen[kw.phrase] {
			seen[kw.phrase] = true
			s.keywords = append(s.keywords, kw.phrase)
		}
	}
	for _, p := range t.patterns {
		if p.re.MatchString(msg) {
			s.patterns = append(s.patterns, p.id)
		}
	}
	return s
}

// Classify picks the conversational mode for message. A campus pattern or a
// higher campus score selects campus; otherwise a volunteer pattern or any
// volunteer score selects volunteer; anything else is general with zero
// confidence.
func (c *IntentClassifier) Classify(message string) model.IntentResult {
	msg := strings.ToLower(strings.TrimSpace(message))
	campus := c.campus.score(msg)
	volunteer := c.volunteer.score(msg)

	result := model.IntentResult{
		Mode:              model.ModeGeneral,
		MatchedKeywords:   []string{},
		MatchedPatternIDs: []string{},
		CampusScore:       round2(campus.score),
		VolunteerScore:    round2(volunteer.score),
	}

	var winner tableScore
	switch {
	case len(campus.patterns) > 0 || campus.score > volunteer.score:
		result.Mode = model.ModeCampus
		winner = campus
	case len(volunteer.patterns) > 0 || volunteer.score > 0:
		result.Mode = model.ModeVolunteer
		winner = volunteer
	default:
		return result
	}

	result.Confidence = winner.score
	if len(winner.patterns) > 0 {
		result.Confidence += PatternBonus
	}
	result.Confidence = round2(result.Confidence)
	if winner.keywords != nil {
		result.MatchedKeywords = winner.keywords
	}
	if winner.patterns != nil {
		result.MatchedPatternIDs = winner.patterns
	}
	return result
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
