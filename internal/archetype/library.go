// Package archetype holds the task templates each project archetype expands into.
package archetype

import (
	"fmt"

	"github.com/ldi/delegate/pkg/models"
)

// TaskTemplate describes one task of an archetype. DependsOn holds indices
// into the same template list and may only point backwards.
type TaskTemplate struct {
	Title          string
	Description    string
	EstimatedHours int
	Priority       models.Priority
	RequiredSkills []string
	DependsOn      []int
}

type Template struct {
	Archetype models.Archetype
	GoalTitle string
	Tasks     []TaskTemplate
}

var library = map[models.Archetype]Template{
	models.ArchetypeWebsite: {
		Archetype: models.ArchetypeWebsite,
		GoalTitle: "Website Development",
		Tasks: []TaskTemplate{
			{
				Title:          "Requirements & sitemap",
				Description:    "Gather requirements, define pages and content structure.",
				EstimatedHours: 8,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Planning", "UX"},
			},
			{
				Title:          "UI/UX design",
				Description:    "Create wireframes and visual designs for the key pages.",
				EstimatedHours: 16,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Design", "UI"},
				DependsOn:      []int{0},
			},
			{
				Title:          "Frontend development",
				Description:    "Implement responsive pages from the approved designs.",
				EstimatedHours: 32,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Frontend", "React"},
				DependsOn:      []int{1},
			},
			{
				Title:          "Backend & API",
				Description:    "Build the API, data model and integrations the site needs.",
				EstimatedHours: 24,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"Backend", "API"},
				DependsOn:      []int{0},
			},
			{
				Title:          "Testing & QA",
				Description:    "Cross-browser, accessibility and regression testing.",
				EstimatedHours: 12,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"QA", "Testing"},
				DependsOn:      []int{2, 3},
			},
			{
				Title:          "Deployment & launch",
				Description:    "Configure hosting, domains and monitoring, then go live.",
				EstimatedHours: 6,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"DevOps"},
				DependsOn:      []int{4},
			},
		},
	},
	models.ArchetypeMobile: {
		Archetype: models.ArchetypeMobile,
		GoalTitle: "Mobile App Development",
		Tasks: []TaskTemplate{
			{
				Title:          "Product requirements",
				Description:    "Define user flows, target platforms and success metrics.",
				EstimatedHours: 10,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Planning", "Product"},
			},
			{
				Title:          "App design",
				Description:    "Design screens and interaction patterns for iOS and Android.",
				EstimatedHours: 20,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Design", "Mobile"},
				DependsOn:      []int{0},
			},
			{
				Title:          "Backend services",
				Description:    "Build the API, authentication and push notification services.",
				EstimatedHours: 24,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Backend", "API"},
				DependsOn:      []int{0},
			},
			{
				Title:          "Mobile client development",
				Description:    "Implement the app screens and wire them to the backend.",
				EstimatedHours: 40,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Mobile", "React Native"},
				DependsOn:      []int{1, 2},
			},
			{
				Title:          "Device testing",
				Description:    "Test on real devices and fix platform-specific issues.",
				EstimatedHours: 16,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"QA", "Testing"},
				DependsOn:      []int{3},
			},
			{
				Title:          "Store submission",
				Description:    "Prepare listings and submit to the App Store and Google Play.",
				EstimatedHours: 6,
				Priority:       models.PriorityLow,
				RequiredSkills: []string{"Release", "Mobile"},
				DependsOn:      []int{4},
			},
		},
	},
	models.ArchetypeMarketing: {
		Archetype: models.ArchetypeMarketing,
		GoalTitle: "Marketing Campaign",
		Tasks: []TaskTemplate{
			{
				Title:          "Market research",
				Description:    "Analyse the audience, competitors and channels.",
				EstimatedHours: 12,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Research", "Analytics"},
			},
			{
				Title:          "Campaign strategy",
				Description:    "Set goals, budget, messaging and the channel mix.",
				EstimatedHours: 8,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Strategy", "Marketing"},
				DependsOn:      []int{0},
			},
			{
				Title:          "Content creation",
				Description:    "Produce copy, visuals and landing content.",
				EstimatedHours: 24,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"Content", "Copywriting"},
				DependsOn:      []int{1},
			},
			{
				Title:          "Channel setup",
				Description:    "Configure ads, email sequences and social scheduling.",
				EstimatedHours: 10,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"Ads", "SEO"},
				DependsOn:      []int{1},
			},
			{
				Title:          "Launch",
				Description:    "Start the campaign across all channels.",
				EstimatedHours: 4,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Marketing"},
				DependsOn:      []int{2, 3},
			},
			{
				Title:          "Performance review",
				Description:    "Track results and report on KPIs.",
				EstimatedHours: 6,
				Priority:       models.PriorityLow,
				RequiredSkills: []string{"Analytics"},
				DependsOn:      []int{4},
			},
		},
	},
	models.ArchetypeGeneric: {
		Archetype: models.ArchetypeGeneric,
		GoalTitle: "Project",
		Tasks: []TaskTemplate{
			{
				Title:          "Planning",
				Description:    "Clarify scope, deliverables and milestones.",
				EstimatedHours: 8,
				Priority:       models.PriorityHigh,
				RequiredSkills: []string{"Planning", "Project Management"},
			},
			{
				Title:          "Implementation",
				Description:    "Carry out the planned work.",
				EstimatedHours: 24,
				Priority:       models.PriorityHigh,
				DependsOn:      []int{0},
			},
			{
				Title:          "Review",
				Description:    "Review the result against the plan and wrap up.",
				EstimatedHours: 8,
				Priority:       models.PriorityMedium,
				RequiredSkills: []string{"Review", "QA"},
				DependsOn:      []int{1},
			},
		},
	},
}

func init() {
	for id, tmpl := range library {
		if err := tmpl.validate(); err != nil {
			panic(fmt.Sprintf("archetype %s: %v", id, err))
		}
	}
}

func (t Template) validate() error {
	if len(t.Tasks) == 0 {
		return fmt.Errorf("no tasks")
	}
	for i, task := range t.Tasks {
		if task.EstimatedHours < 0 {
			return fmt.Errorf("task %d has negative hours", i)
		}
		if !task.Priority.Valid() {
			return fmt.Errorf("task %d has invalid priority %q", i, task.Priority)
		}
		for _, dep := range task.DependsOn {
			if dep < 0 || dep >= i {
				return fmt.Errorf("task %d depends on %d, which is not an earlier task", i, dep)
			}
		}
	}
	return nil
}

// Lookup returns the template for id. Unknown archetypes get the generic
// template and ok=false.
func Lookup(id models.Archetype) (Template, bool) {
	tmpl, ok := library[id]
	if !ok {
		return library[models.ArchetypeGeneric], false
	}
	return tmpl, true
}

// Known reports whether id has a template.
func Known(id models.Archetype) bool {
	_, ok := library[id]
	return ok
}

// All returns the archetype ids in a stable order.
func All() []models.Archetype {
	return []models.Archetype{
		models.ArchetypeWebsite,
		models.ArchetypeMobile,
		models.ArchetypeMarketing,
		models.ArchetypeGeneric,
	}
}
