package models

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSessionCloneIsDeep(t *testing.T) {
	goal := &Goal{
		ID:     "g1",
		Status: GoalStatusProposed,
		Tasks:  []*Task{{ID: "t1", Title: "Design", EstimatedHours: 8}},
	}
	original := &Session{
		ID:    "s1",
		Title: "Bakery",
		Exchanges: []*Exchange{
			{ID: "e1", UserText: "We need a website", GoalID: "g1", Goal: goal.Clone()},
		},
		Goal: goal,
	}

	c := original.Clone()
	if diff := cmp.Diff(original, c); diff != "" {
		t.Fatalf("clone mismatch (-want +got):\n%s", diff)
	}

	c.Exchanges[0].AIText = "changed"
	c.Exchanges[0].Goal.Title = "changed"
	c.Exchanges[0].Goal.Tasks[0].EstimatedHours = 40
	c.Goal.Tasks[0].Title = "changed"

	if original.Exchanges[0].AIText != "" {
		t.Error("Expected the exchange to be copied")
	}
	if original.Exchanges[0].Goal.Title != "" || original.Exchanges[0].Goal.Tasks[0].EstimatedHours != 8 {
		t.Error("Expected the exchange goal to be copied")
	}
	if original.Goal.Tasks[0].Title != "Design" {
		t.Error("Expected the live goal to be copied")
	}
}

func TestSessionCloneNil(t *testing.T) {
	var s *Session
	if s.Clone() != nil {
		t.Error("Expected nil clone of nil session")
	}
	if c := (&Session{ID: "s1"}).Clone(); c.Exchanges != nil {
		t.Errorf("Expected nil exchanges to stay nil, got %v", c.Exchanges)
	}
}
