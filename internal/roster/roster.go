// Package roster supplies the team members tasks can be delegated to.
package roster

import (
	"context"
	"fmt"
	"slices"

	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/pkg/models"
)

// Provider lists the team in roster order. Order is significant: skill
// matching gives ties and the no-match fallback to the first member.
type Provider interface {
	ListMembers(ctx context.Context) ([]*models.TeamMember, error)
}

// Static is a fixed roster.
type Static []*models.TeamMember

func (s Static) ListMembers(ctx context.Context) ([]*models.TeamMember, error) {
	out := make([]*models.TeamMember, len(s))
	for i, m := range s {
		c := *m
		c.Skills = slices.Clone(m.Skills)
		out[i] = &c
	}
	return out, nil
}

// Seed adds each member to the store unless a member with the same name
// already exists. It returns the number of members created.
func Seed(ctx context.Context, store *db.DB, members []*models.TeamMember) (int, error) {
	created := 0
	for _, m := range members {
		existing, err := store.GetMemberByName(ctx, m.Name)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		c := *m
		if err := store.CreateMember(ctx, &c); err != nil {
			return created, fmt.Errorf("failed to seed member %s: %w", m.Name, err)
		}
		created++
	}
	return created, nil
}
