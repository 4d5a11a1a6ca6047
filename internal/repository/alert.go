package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

// AlertRepository 区域报警事件仓库
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警事件仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// AppendAlert 追加一条区域报警事件
// EventID为空时自动生成
func (r *AlertRepository) AppendAlert(ctx context.Context, event *models.ZoneAlertEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	query := `
		INSERT INTO zone_alert_events (
			event_id,
			beacon_id,
			zone_id,
			alert_type,
			x_position,
			y_position,
			triggered_at,
			acknowledged
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.BeaconID,
		event.ZoneID,
		event.AlertType,
		event.X,
		event.Y,
		event.TriggeredAt,
		event.Acknowledged,
	)
	if err != nil {
		return fmt.Errorf("failed to append zone alert event: %w", err)
	}

	return nil
}

// AcknowledgeAlert 确认报警事件
func (r *AlertRepository) AcknowledgeAlert(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE zone_alert_events SET acknowledged = true WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert event not found: event_id=%s", eventID)
	}

	return nil
}

// GetRecentAlerts 查询指定时刻之后的报警事件（按触发时间倒序）
func (r *AlertRepository) GetRecentAlerts(ctx context.Context, since time.Time, limit int) ([]*models.ZoneAlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			event_id,
			beacon_id,
			zone_id,
			alert_type,
			x_position,
			y_position,
			triggered_at,
			acknowledged
		FROM zone_alert_events
		WHERE triggered_at >= $1
		ORDER BY triggered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query zone alert events: %w", err)
	}
	defer rows.Close()

	events := []*models.ZoneAlertEvent{}
	for rows.Next() {
		var event models.ZoneAlertEvent
		err := rows.Scan(
			&event.EventID,
			&event.BeaconID,
			&event.ZoneID,
			&event.AlertType,
			&event.X,
			&event.Y,
			&event.TriggeredAt,
			&event.Acknowledged,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone alert event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zone alert events: %w", err)
	}

	return events, nil
}
