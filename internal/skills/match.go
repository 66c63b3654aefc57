// Package skills scores team members against the skills a task needs.
package skills

import (
	"strings"

	"github.com/ldi/delegate/pkg/models"
)

// Score counts the required skills that appear, case-insensitively, as a
// substring of at least one of the member's skill tags.
func Score(required []string, member *models.TeamMember) int {
	score := 0
	for _, req := range required {
		req = strings.ToLower(strings.TrimSpace(req))
		if req == "" {
			continue
		}
		for _, tag := range member.Skills {
			if strings.Contains(strings.ToLower(tag), req) {
				score++
				break
			}
		}
	}
	return score
}

// BestMatch returns the roster member with the highest Score. Ties go to
// the member that appears first in roster. When nobody scores above zero
// the first roster member is returned; an empty roster yields nil.
func BestMatch(required []string, roster []*models.TeamMember) *models.TeamMember {
	if len(roster) == 0 {
		return nil
	}

	best := roster[0]
	bestScore := 0
	for _, m := range roster {
		if s := Score(required, m); s > bestScore {
			best, bestScore = m, s
		}
	}
	return best
}
