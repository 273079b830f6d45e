package model

// Mode is the conversational track a message is routed to
type Mode string

const (
	ModeCampus    Mode = "campus"
	ModeVolunteer Mode = "volunteer"
	ModeGeneral   Mode = "general"
)

// IntentResult is the classification of a single message
type IntentResult struct {
	Mode              Mode     `json:"mode"`
	Confidence        float64  `json:"confidence"`
	MatchedKeywords   []string `json:"matchedKeywords"`
	MatchedPatternIDs []string `json:"matchedPatternIds"`
	CampusScore       float64  `json:"campusScore"`
	VolunteerScore    float64  `json:"volunteerScore"`
}
