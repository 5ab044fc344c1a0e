package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HoursConfig describes opening hours shared by a set of weekdays.
type HoursConfig struct {
	Days       []int  `yaml:"days"`  // 0-6 (Sunday-Saturday)
	Open       string `yaml:"open"`  // "09:00"
	Close      string `yaml:"close"` // "18:00"
	LunchStart string `yaml:"lunch_start,omitempty"`
	LunchEnd   string `yaml:"lunch_end,omitempty"`
}

type ServiceConfig struct {
	ID              int64   `yaml:"id"`
	Name            string  `yaml:"name"`
	DurationMinutes int     `yaml:"duration_minutes"`
	Price           float64 `yaml:"price"`
	Inactive        bool    `yaml:"inactive,omitempty"`
}

type EmployeeConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// HolidayConfig closes a business (or all of them when BusinessIDs is empty) on a date.
type HolidayConfig struct {
	Date        string  `yaml:"date"` // "2026-01-01"
	Name        string  `yaml:"name"`
	Repeat      string  `yaml:"repeat,omitempty"`
	BusinessIDs []int64 `yaml:"business_ids,omitempty"`
}

type BusinessConfig struct {
	ID                    int64            `yaml:"id"`
	Name                  string           `yaml:"name"`
	TimeZone              string           `yaml:"time_zone"`
	Open24Hours           bool             `yaml:"open_24_hours"`
	DefaultServiceMinutes int              `yaml:"default_service_minutes"`
	Hours                 []HoursConfig    `yaml:"hours"`
	Services              []ServiceConfig  `yaml:"services"`
	Employees             []EmployeeConfig `yaml:"employees"`
}

// BusinessesConfig is the root of businesses.yaml.
type BusinessesConfig struct {
	Businesses []BusinessConfig `yaml:"businesses"`
	Holidays   []HolidayConfig  `yaml:"holidays"`
}

// LoadBusinessesConfig loads and validates businesses configuration from YAML file.
func LoadBusinessesConfig(path string) (*BusinessesConfig, error) {
	if path == "" {
		path = "configs/businesses.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read businesses config: %w", err)
	}

	var cfg BusinessesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse businesses config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate businesses config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *BusinessesConfig) Validate() error {
	if len(c.Businesses) == 0 {
		return fmt.Errorf("no businesses defined")
	}

	ids := make(map[int64]bool)
	for i, b := range c.Businesses {
		if b.ID <= 0 {
			return fmt.Errorf("business[%d]: id must be positive, got %d", i, b.ID)
		}
		if ids[b.ID] {
			return fmt.Errorf("business[%d]: duplicate id %d", i, b.ID)
		}
		ids[b.ID] = true

		if b.Name == "" {
			return fmt.Errorf("business[%d]: name is required", i)
		}
		if b.TimeZone != "" {
			if _, err := time.LoadLocation(b.TimeZone); err != nil {
				return fmt.Errorf("business[%d]: unknown time_zone '%s'", i, b.TimeZone)
			}
		}
		if b.DefaultServiceMinutes < 0 {
			return fmt.Errorf("business[%d]: default_service_minutes cannot be negative", i)
		}

		seenDays := make(map[int]bool)
		for j := range b.Hours {
			prefix := fmt.Sprintf("business[%d].hours[%d]", i, j)
			if err := validateHours(&b.Hours[j], prefix); err != nil {
				return err
			}
			for _, d := range b.Hours[j].Days {
				if seenDays[d] {
					return fmt.Errorf("%s: day %d configured twice", prefix, d)
				}
				seenDays[d] = true
			}
		}

		for j, s := range b.Services {
			if s.ID <= 0 || s.Name == "" {
				return fmt.Errorf("business[%d].services[%d]: id and name are required", i, j)
			}
			if s.DurationMinutes <= 0 {
				return fmt.Errorf("business[%d].services[%d]: duration_minutes must be positive", i, j)
			}
		}
		for j, e := range b.Employees {
			if e.ID <= 0 || e.Name == "" {
				return fmt.Errorf("business[%d].employees[%d]: id and name are required", i, j)
			}
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
		switch h.Repeat {
		case "", "none", "yearly":
		default:
			return fmt.Errorf("holiday[%d]: repeat must be none or yearly, got '%s'", i, h.Repeat)
		}
	}

	return nil
}

// validateHours checks an hours block for errors.
func validateHours(h *HoursConfig, prefix string) error {
	if len(h.Days) == 0 {
		return fmt.Errorf("%s.days is required", prefix)
	}
	for _, d := range h.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("%s.days: invalid day %d, must be 0-6 (0=Sun)", prefix, d)
		}
	}

	open, err := time.Parse("15:04", h.Open)
	if err != nil {
		return fmt.Errorf("%s.open: invalid format '%s', expected HH:MM", prefix, h.Open)
	}
	closeAt, err := time.Parse("15:04", h.Close)
	if err != nil {
		return fmt.Errorf("%s.close: invalid format '%s', expected HH:MM", prefix, h.Close)
	}
	if !closeAt.After(open) {
		return fmt.Errorf("%s: close must be after open", prefix)
	}

	if h.LunchStart != "" || h.LunchEnd != "" {
		lunchStart, err := time.Parse("15:04", h.LunchStart)
		if err != nil {
			return fmt.Errorf("%s.lunch_start: invalid format '%s', expected HH:MM", prefix, h.LunchStart)
		}
		lunchEnd, err := time.Parse("15:04", h.LunchEnd)
		if err != nil {
			return fmt.Errorf("%s.lunch_end: invalid format '%s', expected HH:MM", prefix, h.LunchEnd)
		}
		if !lunchEnd.After(lunchStart) {
			return fmt.Errorf("%s: lunch_end must be after lunch_start", prefix)
		}
		if lunchStart.Before(open) || lunchEnd.After(closeAt) {
			return fmt.Errorf("%s: lunch break must be within opening hours", prefix)
		}
	}

	return nil
}

// HoursFor returns the hours block covering weekday, or nil when the business is closed.
func (b *BusinessConfig) HoursFor(weekday int) *HoursConfig {
	for i := range b.Hours {
		for _, d := range b.Hours[i].Days {
			if d == weekday {
				return &b.Hours[i]
			}
		}
	}
	return nil
}

// HolidaysFor returns the holidays that apply to businessID.
func (c *BusinessesConfig) HolidaysFor(businessID int64) []HolidayConfig {
	var out []HolidayConfig
	for _, h := range c.Holidays {
		if len(h.BusinessIDs) == 0 {
			out = append(out, h)
			continue
		}
		for _, id := range h.BusinessIDs {
			if id == businessID {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// String returns a summary of the configuration.
func (c *BusinessesConfig) String() string {
	employees := 0
	for _, b := range c.Businesses {
		employees += len(b.Employees)
	}
	return fmt.Sprintf("BusinessesConfig: %d businesses, %d employees, %d holidays",
		len(c.Businesses), employees, len(c.Holidays))
}
