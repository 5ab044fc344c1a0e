package model

import "time"

type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueInService QueueStatus = "in_service"
	QueueCompleted QueueStatus = "completed"
	QueueCancelled QueueStatus = "cancelled"
	QueueNoShow    QueueStatus = "no_show"
)

// IsTerminal reports whether the entry is archived and excluded from live reads.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueCompleted || s == QueueCancelled || s == QueueNoShow
}

func (s QueueStatus) Valid() bool {
	switch s {
	case QueueWaiting, QueueInService, QueueCompleted, QueueCancelled, QueueNoShow:
		return true
	}
	return false
}

type QueueEntry struct {
	ID                    int64       `json:"id"`
	BusinessID            int64       `json:"business_id"`
	EmployeeID            *int64      `json:"employee_id,omitempty"`
	ServiceID             *int64      `json:"service_id,omitempty"`
	CustomerName          string      `json:"customer_name"`
	Phone                 string      `json:"phone,omitempty"`
	PartySize             int         `json:"party_size"`
	Status                QueueStatus `json:"status"`
	JoinedAt              time.Time   `json:"joined_at"`
	EstimatedStart        *time.Time  `json:"estimated_start,omitempty"`
	CustomDurationMinutes *int        `json:"custom_duration_minutes,omitempty"`
	CustomPrice           *float64    `json:"custom_price,omitempty"`
	Notes                 string      `json:"notes,omitempty"`
	ServiceStartedAt      *time.Time  `json:"service_started_at,omitempty"`
	ServiceEndedAt        *time.Time  `json:"service_ended_at,omitempty"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// PreferredEmployee returns the requested employee id or 0.
func (q *QueueEntry) PreferredEmployee() int64 {
	if q.EmployeeID == nil {
		return 0
	}
	return *q.EmployeeID
}

// Duration resolves how long the entry occupies an employee: custom, then service, then fallback.
func (q *QueueEntry) Duration(svc *Service, fallback time.Duration) time.Duration {
	if q.CustomDurationMinutes != nil && *q.CustomDurationMinutes > 0 {
		return time.Duration(*q.CustomDurationMinutes) * time.Minute
	}
	if svc != nil && svc.DurationMinutes > 0 {
		return svc.Duration()
	}
	return fallback
}
