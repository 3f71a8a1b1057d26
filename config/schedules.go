package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// JobSchedule is one entry of the schedules file.
type JobSchedule struct {
	// Cron is a standard five-field expression in the academy timezone.
	// Empty means the job only runs from the HTTP trigger.
	Cron string `yaml:"cron"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether cron runs are on.
func (s JobSchedule) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Schedules maps a job name to its schedule.
type Schedules map[string]JobSchedule

type schedulesFile struct {
	Jobs Schedules `yaml:"jobs"`
}

// DefaultSchedules returns the built-in trigger times.
func DefaultSchedules() Schedules {
	return Schedules{
		"auto-absent":     {Cron: "5 0 * * *"},
		"check-absence":   {Cron: "0 21 * * *"},
		"check-promotion": {Cron: "0 6 1 * *"},
		"agent-report":    {Cron: "0 20 * * *"},
	}
}

// LoadSchedules reads path and overlays it on DefaultSchedules.
// An empty path returns the defaults.
func LoadSchedules(path string) (Schedules, error) {
	out := DefaultSchedules()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules: %w", err)
	}

	parsed, err := ParseSchedules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for name, s := range parsed {
		out[name] = s
	}
	return out, nil
}

// ParseSchedules decodes a schedules document.
func ParseSchedules(data []byte) (Schedules, error) {
	var f schedulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schedules: %w", err)
	}
	if f.Jobs == nil {
		return Schedules{}, nil
	}
	return f.Jobs, nil
}

// Names returns job names in stable order.
func (s Schedules) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
