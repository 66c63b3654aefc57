package intent

import (
	"testing"

	"github.com/ldi/delegate/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want models.Archetype
	}{
		{"Let's build a mobile app for onboarding", models.ArchetypeMobile},
		{"launch a marketing campaign", models.ArchetypeMarketing},
		{"do something", models.ArchetypeGeneric},
		{"  We need a new WEBSITE  ", models.ArchetypeWebsite},
		{"ship a web app for clients", models.ArchetypeWebsite},
		{"an Android App for drivers", models.ArchetypeMobile},
		{"", models.ArchetypeGeneric},
		// Overlap resolves by rule order: website is checked first.
		{"a website for the marketing campaign", models.ArchetypeWebsite},
		{"mobile app marketing push", models.ArchetypeMobile},
	}

	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "Build a landing page and an ios app"
	first := Classify(text)
	for i := 0; i < 10; i++ {
		if got := Classify(text); got != first {
			t.Fatalf("Classify is not deterministic: %s then %s", first, got)
		}
	}
}

func TestRulesOrder(t *testing.T) {
	got := Rules()
	want := []models.Archetype{models.ArchetypeWebsite, models.ArchetypeMobile, models.ArchetypeMarketing}
	if len(got) != len(want) {
		t.Fatalf("Expected %d rules, got %d", len(want), len(got))
	}
	for i, r := range got {
		if r.Archetype != want[i] {
			t.Errorf("rule %d: expected %s, got %s", i, want[i], r.Archetype)
		}
	}

	got[0].Archetype = models.ArchetypeGeneric
	if Rules()[0].Archetype != models.ArchetypeWebsite {
		t.Error("Rules must return a copy")
	}
}

func TestIsGoalRequest(t *testing.T) {
	if !IsGoalRequest("launch a marketing campaign") {
		t.Error("Expected archetype match to be a goal request")
	}
	if !IsGoalRequest("Please plan the quarterly offsite") {
		t.Error("Expected planning verb to be a goal request")
	}
	if IsGoalRequest("hello there") {
		t.Error("Expected greeting not to be a goal request")
	}
}
