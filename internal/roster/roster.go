// Package roster reads the clinic team and its working hours from a
// YAML, JSON or TOML file.
//
//	professionals:
//	  - id: ricardo
//	    name: Dr. Ricardo Silva
//	    specialty: Implantodontista
//	    hours:
//	      monday: ["08:00-12:00", "13:00-18:00"]
package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hackgods/clinic-agenda/internal/scheduling"
)

type entry struct {
	ID        string              `mapstructure:"id"`
	Name      string              `mapstructure:"name"`
	Specialty string              `mapstructure:"specialty"`
	Hours     map[string][]string `mapstructure:"hours"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load reads the roster at path.
func Load(path string) ([]scheduling.Professional, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var entries []entry
	if err := v.UnmarshalKey("professionals", &entries); err != nil {
		return nil, fmt.Errorf("decode roster %s: %w", path, err)
	}

	out := make([]scheduling.Professional, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("roster entry %d: id is required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("roster entry %d: duplicate id %q", i, e.ID)
		}
		seen[e.ID] = true

		hours, err := ParseHours(e.Hours)
		if err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", e.ID, err)
		}
		out = append(out, scheduling.Professional{
			ID:        e.ID,
			Name:      e.Name,
			Specialty: e.Specialty,
			Hours:     hours,
		})
	}
	return out, nil
}

// ParseHours converts weekday names to "HH:MM-HH:MM" ranges into validated
// working hours.
func ParseHours(raw map[string][]string) (scheduling.WorkingHours, error) {
	hours := make(scheduling.WorkingHours, len(raw))
	for name, ranges := range raw {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		for _, r := range ranges {
			iv, err := ParseRange(r)
			if err != nil {
				return nil, err
			}
			hours[day] = append(hours[day], iv)
		}
	}
	if err := hours.Validate(); err != nil {
		return nil, err
	}
	return hours.Normalize(), nil
}

// ParseRange parses "HH:MM-HH:MM". "24:00" is accepted as an end.
func ParseRange(s string) (scheduling.Interval, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return scheduling.Interval{}, fmt.Errorf("range %q: want HH:MM-HH:MM", s)
	}
	start, err := scheduling.ParseClock(strings.TrimSpace(from))
	if err != nil {
		return scheduling.Interval{}, err
	}
	to = strings.TrimSpace(to)
	end := scheduling.MinutesPerDay
	if to != "24:00" {
		if end, err = scheduling.ParseClock(to); err != nil {
			return scheduling.Interval{}, err
		}
	}
	return scheduling.Interval{Start: start, End: end}, nil
}

// Save writes profs to path in the format Load reads. The format follows
// the file extension.
func Save(path string, profs []scheduling.Professional) error {
	entries := make([]map[string]any, 0, len(profs))
	for _, p := range profs {
		hours := make(map[string][]string, len(p.Hours))
		for day, ivs := range p.Hours.Normalize() {
			ranges := make([]string, 0, len(ivs))
			for _, iv := range ivs {
				ranges = append(ranges, iv.String())
			}
			hours[strings.ToLower(day.String())] = ranges
		}
		e := map[string]any{"id": p.ID, "name": p.Name, "hours": hours}
		if p.Specialty != "" {
			e["specialty"] = p.Specialty
		}
		entries = append(entries, e)
	}

	v := viper.New()
	v.Set("professionals", entries)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write roster %s: %w", path, err)
	}
	return nil
}
