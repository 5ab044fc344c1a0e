package model

import "time"

const DefaultServiceMinutes = 20

type Business struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	TimeZone              string    `json:"time_zone"`
	Open24Hours           bool      `json:"open_24_hours"`
	DefaultServiceMinutes int       `json:"default_service_minutes"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Location resolves the business time zone, falling back to UTC.
func (b *Business) Location() *time.Location {
	if b == nil || b.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultDuration is used for entries without a service or custom duration.
func (b *Business) DefaultDuration() time.Duration {
	if b == nil || b.DefaultServiceMinutes <= 0 {
		return DefaultServiceMinutes * time.Minute
	}
	return time.Duration(b.DefaultServiceMinutes) * time.Minute
}

type OperatingHours struct {
	ID         int64  `json:"id"`
	BusinessID int64  `json:"business_id"`
	DayOfWeek  int    `json:"day_of_week"` // 0-6 (Sunday-Saturday)
	OpenTime   string `json:"open_time"`   // "09:00"
	CloseTime  string `json:"close_time"`  // "18:00"
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
	IsClosed   bool   `json:"is_closed"`
}

func (h *OperatingHours) HasLunch() bool {
	return h.LunchStart != "" && h.LunchEnd != ""
}
