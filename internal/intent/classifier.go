// Package intent maps free-text requests to project archetypes.
package intent

import (
	"strings"

	"github.com/ldi/delegate/pkg/models"
)

// Rule pairs an archetype with the keywords that select it.
type Rule struct {
	Archetype models.Archetype
	Keywords  []string
}

func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// rules are evaluated top to bottom and the first match wins. Text that
// mentions several archetypes ("a website for our marketing campaign")
// resolves to the earliest rule.
var rules = []Rule{
	{Archetype: models.ArchetypeWebsite, Keywords: []string{"website", "web app", "web application", "landing page"}},
	{Archetype: models.ArchetypeMobile, Keywords: []string{"mobile app", "ios app", "android app"}},
	{Archetype: models.ArchetypeMarketing, Keywords: []string{"marketing", "campaign"}},
}

// planningVerbs mark a message as a request for a plan even when no
// archetype keyword is present.
var planningVerbs = []string{"build", "create", "launch", "develop", "plan", "make", "set up", "organize", "ship"}

// Classify returns the archetype for text, or ArchetypeGeneric.
func Classify(text string) models.Archetype {
	lowered := strings.ToLower(text)
	for _, r := range rules {
		if r.Matches(lowered) {
			return r.Archetype
		}
	}
	return models.ArchetypeGeneric
}

// Rules returns a copy of the ordered rule list.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// IsGoalRequest reports whether text asks for a project plan.
func IsGoalRequest(text string) bool {
	if Classify(text) != models.ArchetypeGeneric {
		return true
	}
	lowered := strings.ToLower(text)
	for _, verb := range planningVerbs {
		if strings.Contains(lowered, verb) {
			return true
		}
	}
	return false
}
