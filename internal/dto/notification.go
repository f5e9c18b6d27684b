package dto

import "github.com/noah-isme/repense-api/internal/models"

// AdminFeed groups unread admin notifications by category.
type AdminFeed struct {
	Observations   []models.Notification `json:"observations"`
	SessionReports []models.Notification `json:"session_reports"`
	FinalReports   []models.Notification `json:"final_reports"`
	LeaderMessages []models.Notification `json:"leader_messages"`
	Unread         int                   `json:"unread"`
}

// TeacherFeed lists unread leader messages for a teacher.
type TeacherFeed struct {
	LeaderMessages []models.Notification `json:"leader_messages"`
	Unread         int                   `json:"unread"`
}

// MarkReadResult reports how many notifications changed state. Zero is a
// valid outcome for repeated calls.
type MarkReadResult struct {
	Marked int64 `json:"marked"`
}
