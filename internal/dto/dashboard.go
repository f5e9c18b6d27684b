package dto

import "time"

// GroupSummary aggregates one Grupo Repense category.
type GroupSummary struct {
	Grupo         string `db:"grupo" json:"grupo"`
	Classes       int    `db:"classes" json:"classes"`
	ActiveClasses int    `db:"active_classes" json:"active_classes"`
	Capacity      int    `db:"capacity" json:"capacity"`
	Enrolled      int    `db:"enrolled" json:"enrolled"`
	Waiting       int    `db:"waiting" json:"waiting"`
}

// AdminDashboardResponse is the admin overview payload.
type AdminDashboardResponse struct {
	Groups              []GroupSummary `json:"groups"`
	TotalCapacity       int            `json:"total_capacity"`
	TotalEnrolled       int            `json:"total_enrolled"`
	TotalWaiting        int            `json:"total_waiting"`
	OccupancyRate       float64        `json:"occupancy_rate"`
	UnreadNotifications int            `json:"unread_notifications"`
	GeneratedAt         time.Time      `json:"generated_at"`
}
