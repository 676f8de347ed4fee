// Package mapping translates source tracker vocabulary (statuses, priorities,
// users) into destination vocabulary. All lookups are pure table lookups;
// unknown values are errors, never defaults, because a missing entry is a
// configuration gap a human fixes before re-running.
package mapping

import (
	"fmt"
	"os"
	"strings"

	"github.com/lherron/wrkmig/internal/domain"
	"gopkg.in/yaml.v3"
)

// Mapper holds the effective mapping tables. Each category has its own state
// table: destination workflows differ per category (a backlog item has an
// Approved/Committed distinction a task does not).
type Mapper struct {
	states     map[domain.Category]map[string]string
	priorities map[string]int
	users      map[string]string
}

// Default returns a mapper with the builtin tables.
func Default() *Mapper {
	return &Mapper{
		states: map[domain.Category]map[string]string{
			domain.CategoryFeature: {
				"Backlog":     "New",
				"Open":        "New",
				"To Do":       "New",
				"In Progress": "In Progress",
				"In Review":   "In Progress",
				"Resolved":    "Done",
				"Closed":      "Done",
				"Done":        "Done",
			},
			domain.CategoryBug: {
				"Backlog":                  "New",
				"Open":                     "New",
				"To Do":                    "New",
				"Reopened":                 "New",
				"Selected for Development": "Approved",
				"In Progress":              "Committed",
				"In Review":                "Committed",
				"Resolved":                 "Done",
				"Closed":                   "Done",
				"Done":                     "Done",
			},
			domain.CategoryBacklogItem: {
				"Backlog":                  "New",
				"Open":                     "New",
				"To Do":                    "New",
				"Selected for Development": "Approved",
				"In Progress":              "Committed",
				"In Review":                "Committed",
				"Resolved":                 "Done",
				"Closed":                   "Done",
				"Done":                     "Done",
			},
			domain.CategoryTask: {
				"Backlog":     "To Do",
				"Open":        "To Do",
				"To Do":       "To Do",
				"In Progress": "In Progress",
				"In Review":   "In Progress",
				"Resolved":    "Done",
				"Closed":      "Done",
				"Done":        "Done",
			},
		},
		priorities: map[string]int{
			"Blocker":  1,
			"Highest":  1,
			"Critical": 1,
			"High":     2,
			"Major":    2,
			"Medium":   3,
			"Minor":    3,
			"Low":      4,
			"Trivial":  4,
			"Lowest":   4,
		},
		users: map[string]string{},
	}
}

// overlayFile is the YAML shape of a deployment-supplied mapping file.
// Entries merge over the builtin tables.
type overlayFile struct {
	States     map[string]map[string]string `yaml:"states"`
	Priorities map[string]int               `yaml:"priorities"`
	Users      map[string]string            `yaml:"users"`
}

// Load returns the default mapper with the overlay file at path merged in.
// An empty path returns the defaults unchanged.
func Load(path string) (*Mapper, error) {
	m := Default()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	for name, table := range overlay.States {
		category := domain.Category(name)
		if _, ok := m.states[category]; !ok {
			return nil, fmt.Errorf("mapping file references unknown category %q", name)
		}
		for status, state := range table {
			m.states[category][status] = state
		}
	}
	for name, rank := range overlay.Priorities {
		m.priorities[name] = rank
	}
	for source, dest := range overlay.Users {
		m.users[source] = dest
	}

	return m, nil
}

// ResolveState maps a source status name to the destination state for the
// given category.
func (m *Mapper) ResolveState(category domain.Category, status string) (string, error) {
	table, ok := m.states[category]
	if !ok {
		return "", &domain.UnmappedStatusError{Category: category, Status: status}
	}
	state, ok := table[status]
	if !ok {
		return "", &domain.UnmappedStatusError{Category: category, Status: status}
	}
	return state, nil
}

// ResolvePriority maps a source priority name to the destination ordinal
// rank (smaller = more urgent).
func (m *Mapper) ResolvePriority(priority string) (int, error) {
	rank, ok := m.priorities[priority]
	if !ok {
		return 0, &domain.UnmappedPriorityError{Priority: priority}
	}
	return rank, nil
}

// ResolveUser maps a source username to a destination identity. Identity
// passthrough unless the user table has an entry.
func (m *Mapper) ResolveUser(name string) string {
	if dest, ok := m.users[name]; ok {
		return dest
	}
	return name
}

// ResolveAreaPath composes the destination area path from a team name.
// An absent team yields an absent path.
func (m *Mapper) ResolveAreaPath(team, project string) string {
	if team == "" {
		return ""
	}
	return project + "\\" + team
}

// ResolveIteration composes the destination iteration path from the record's
// sprint history. The last (most recent) sprint wins; an empty history yields
// an absent path.
func (m *Mapper) ResolveIteration(sprints []string, project string) string {
	for i := len(sprints) - 1; i >= 0; i-- {
		if sprint := strings.TrimSpace(sprints[i]); sprint != "" {
			return project + "\\" + sprint
		}
	}
	return ""
}

// StateTable returns a copy of the state table for a category, for auditing.
func (m *Mapper) StateTable(category domain.Category) map[string]string {
	table := make(map[string]string, len(m.states[category]))
	for k, v := range m.states[category] {
		table[k] = v
	}
	return table
}

// PriorityTable returns a copy of the priority table, for auditing.
func (m *Mapper) PriorityTable() map[string]int {
	table := make(map[string]int, len(m.priorities))
	for k, v := range m.priorities {
		table[k] = v
	}
	return table
}

// UserTable returns a copy of the user table, for auditing.
func (m *Mapper) UserTable() map[string]string {
	table := make(map[string]string, len(m.users))
	for k, v := range m.users {
		table[k] = v
	}
	return table
}
