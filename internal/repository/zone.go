package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

// ZoneRepository 区域仓库
// 区域多边形与报警配置由外部管理端维护，定位核心只读
type ZoneRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewZoneRepository 创建区域仓库
func NewZoneRepository(db *sql.DB, logger *zap.Logger) *ZoneRepository {
	return &ZoneRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveZones 获取所有启用的区域
// 多边形以JSONB存储为 [{"x":..,"y":..},...]；解析失败的区域跳过并记录
func (r *ZoneRepository) GetActiveZones(ctx context.Context) ([]*models.Zone, error) {
	query := `
		SELECT
			zone_id,
			floor_id,
			name,
			polygon,
			is_active,
			alert_on_entry,
			alert_on_exit,
			dwell_seconds
		FROM zones
		WHERE is_active = true
		ORDER BY zone_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	zones := []*models.Zone{}
	for rows.Next() {
		var zone models.Zone
		var polygonJSON []byte
		var dwellSeconds sql.NullInt64

		err := rows.Scan(
			&zone.ZoneID,
			&zone.FloorID,
			&zone.Name,
			&polygonJSON,
			&zone.IsActive,
			&zone.AlertOnEntry,
			&zone.AlertOnExit,
			&dwellSeconds,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}

		if err := json.Unmarshal(polygonJSON, &zone.Polygon); err != nil {
			r.logger.Warn("Failed to parse zone polygon, skipping zone",
				zap.String("zone_id", zone.ZoneID),
				zap.Error(err))
			continue
		}
		if dwellSeconds.Valid {
			zone.DwellSeconds = int(dwellSeconds.Int64)
		}

		zones = append(zones, &zone)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zones: %w", err)
	}

	return zones, nil
}
