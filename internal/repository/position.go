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

// PositionRepository 位置历史仓库
// 仅追加：每tick的原始估计写入后不再修改
type PositionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPositionRepository 创建位置历史仓库
func NewPositionRepository(db *sql.DB, logger *zap.Logger) *PositionRepository {
	return &PositionRepository{
		db:     db,
		logger: logger,
	}
}

// AppendPosition 追加一条位置估计记录
// PositionID为空时自动生成
func (r *PositionRepository) AppendPosition(ctx context.Context, pos *models.PositionEstimate) error {
	if pos == nil {
		return fmt.Errorf("position is required")
	}
	if pos.PositionID == "" {
		pos.PositionID = uuid.New().String()
	}

	query := `
		INSERT INTO position_history (
			position_id,
			beacon_id,
			floor_id,
			x_position,
			y_position,
			accuracy,
			calculation_method,
			computed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		pos.PositionID,
		pos.BeaconID,
		pos.FloorID,
		pos.X,
		pos.Y,
		pos.AccuracyRadius,
		pos.Method,
		pos.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append position: %w", err)
	}

	return nil
}

// GetPositionHistory 查询信标在时间段内的位置历史（按时间倒序）
func (r *PositionRepository) GetPositionHistory(ctx context.Context, beaconID string, start, end time.Time, limit int) ([]*models.PositionEstimate, error) {
	if beaconID == "" {
		return nil, fmt.Errorf("beacon_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			position_id,
			beacon_id,
			floor_id,
			x_position,
			y_position,
			accuracy,
			calculation_method,
			computed_at
		FROM position_history
		WHERE beacon_id = $1
		  AND computed_at >= $2
		  AND computed_at <= $3
		ORDER BY computed_at DESC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, beaconID, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}
	defer rows.Close()

	positions := []*models.PositionEstimate{}
	for rows.Next() {
		var pos models.PositionEstimate
		err := rows.Scan(
			&pos.PositionID,
			&pos.BeaconID,
			&pos.FloorID,
			&pos.X,
			&pos.Y,
			&pos.AccuracyRadius,
			&pos.Method,
			&pos.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, &pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}

	return positions, nil
}

// PurgeBefore 清理指定时刻之前的位置历史，返回删除行数
func (r *PositionRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM position_history WHERE computed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge position history: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
