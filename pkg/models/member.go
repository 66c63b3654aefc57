package models

import "time"

type TeamMember struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	Skills    []string  `json:"skills"`
	CreatedAt time.Time `json:"created_at"`
}

// FindMember returns the roster entry with the given id, or nil.
func FindMember(roster []*TeamMember, id string) *TeamMember {
	for _, m := range roster {
		if m.ID == id {
			return m
		}
	}
	return nil
}
