package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

// DeviceRepository 设备仓库
// 网关与信标配置由外部管理端写入，定位核心只读
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetActiveGateways 获取所有启用的网关（含标定参数）
func (r *DeviceRepository) GetActiveGateways(ctx context.Context) ([]*models.Gateway, error) {
	query := `
		SELECT
			gateway_id,
			floor_id,
			mac_address,
			name,
			x_position,
			y_position,
			is_active,
			reference_power,
			path_loss_exponent
		FROM gateways
		WHERE is_active = true
		ORDER BY gateway_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query gateways: %w", err)
	}
	defer rows.Close()

	gateways := []*models.Gateway{}
	for rows.Next() {
		var gw models.Gateway
		var refPower, exponent sql.NullFloat64

		err := rows.Scan(
			&gw.GatewayID,
			&gw.FloorID,
			&gw.MacAddress,
			&gw.Name,
			&gw.X,
			&gw.Y,
			&gw.IsActive,
			&refPower,
			&exponent,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gateway: %w", err)
		}

		// 标定参数可空，缺省时路径损耗模型使用文档化默认值
		if refPower.Valid {
			gw.ReferencePower = &refPower.Float64
		}
		if exponent.Valid {
			gw.PathLossExponent = &exponent.Float64
		}

		gateways = append(gateways, &gw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gateways: %w", err)
	}

	return gateways, nil
}

// GetActiveBeacons 获取所有启用的信标
func (r *DeviceRepository) GetActiveBeacons(ctx context.Context) ([]*models.Beacon, error) {
	query := `
		SELECT
			beacon_id,
			mac_address,
			name,
			resource_type,
			is_active
		FROM beacons
		WHERE is_active = true
		ORDER BY beacon_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query beacons: %w", err)
	}
	defer rows.Close()

	beacons := []*models.Beacon{}
	for rows.Next() {
		var b models.Beacon
		err := rows.Scan(
			&b.BeaconID,
			&b.MacAddress,
			&b.Name,
			&b.ResourceType,
			&b.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan beacon: %w", err)
		}
		beacons = append(beacons, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate beacons: %w", err)
	}

	return beacons, nil
}

// NormalizeMac 归一化MAC地址：去掉分隔符并转为大写
// 网关上报的MAC不带冒号，数据库录入格式可能带冒号或连字符
func NormalizeMac(mac string) string {
	mac = strings.ToUpper(mac)
	mac = strings.ReplaceAll(mac, ":", "")
	mac = strings.ReplaceAll(mac, "-", "")
	return mac
}
