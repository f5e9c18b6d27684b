package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repense-api/internal/dto"
)

// DashboardRepository aggregates admin dashboard figures.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// GroupSummaries returns per grupo class, seat and waitlist totals. Archived
// classes are excluded.
func (r *DashboardRepository) GroupSummaries(ctx context.Context) ([]dto.GroupSummary, error) {
	const query = `SELECT g.grupo,
        COALESCE(c.classes, 0) AS classes,
        COALESCE(c.active_classes, 0) AS active_classes,
        COALESCE(c.capacity, 0) AS capacity,
        COALESCE(c.enrolled, 0) AS enrolled,
        COALESCE(w.waiting, 0) AS waiting
        FROM (VALUES ('igreja'), ('espiritualidade'), ('evangelho')) AS g(grupo)
        LEFT JOIN (
            SELECT grupo, COUNT(*) AS classes, COUNT(*) FILTER (WHERE active) AS active_classes,
                SUM(capacidade) AS capacity, SUM(numero_inscritos) AS enrolled
            FROM classes WHERE NOT archived GROUP BY grupo
        ) c ON c.grupo = g.grupo
        LEFT JOIN (
            SELECT priority_list_course_id AS grupo, COUNT(*) AS waiting
            FROM students WHERE priority_list GROUP BY priority_list_course_id
        ) w ON w.grupo = g.grupo
        ORDER BY g.grupo`
	var summaries []dto.GroupSummary
	if err := r.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("dashboard group summaries: %w", err)
	}
	return summaries, nil
}

// UnreadAdminNotifications counts unread admin feed items.
func (r *DashboardRepository) UnreadAdminNotifications(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE recipient_role = 'ADMIN' AND NOT lida_por_admin"); err != nil {
		return 0, fmt.Errorf("count unread admin notifications: %w", err)
	}
	return count, nil
}
