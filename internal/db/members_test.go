package db

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ldi/delegate/pkg/models"
)

func TestMemberCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	names := []string{"Grace", "Alan", "Barbara"}
	for _, name := range names {
		m := &models.TeamMember{Name: name, Role: "Engineer", Skills: []string{"go", "sql"}}
		if err := db.CreateMember(ctx, m); err != nil {
			t.Fatalf("Failed to create member %s: %v", name, err)
		}
	}

	members, err := db.ListMembers(ctx)
	if err != nil {
		t.Fatalf("Failed to list members: %v", err)
	}
	var got []string
	for _, m := range members {
		got = append(got, m.Name)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("Roster order mismatch (-want +got):\n%s", diff)
	}

	alan, err := db.GetMemberByName(ctx, "alan")
	if err != nil {
		t.Fatalf("Failed to get member by name: %v", err)
	}
	if alan == nil || alan.Name != "Alan" {
		t.Fatalf("Expected case-insensitive lookup to find Alan, got %+v", alan)
	}
	if diff := cmp.Diff([]string{"go", "sql"}, alan.Skills); diff != "" {
		t.Errorf("Skills mismatch (-want +got):\n%s", diff)
	}

	alan.Role = "Architect"
	alan.Skills = []string{"design"}
	if err := db.UpdateMember(ctx, alan); err != nil {
		t.Fatalf("Failed to update member: %v", err)
	}
	updated, _ := db.GetMember(ctx, alan.ID)
	if updated.Role != "Architect" || len(updated.Skills) != 1 {
		t.Errorf("Update not applied: %+v", updated)
	}

	dup := &models.TeamMember{Name: "Grace"}
	if err := db.CreateMember(ctx, dup); err == nil {
		t.Error("Expected duplicate name to fail")
	}

	if err := db.DeleteMember(ctx, alan.ID); err != nil {
		t.Fatalf("Failed to delete member: %v", err)
	}
	if err := db.DeleteMember(ctx, alan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
