package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

// SignalRepository 原始信号归档仓库
// 内存存储只保留聚合窗口所需的近期观测，历史追溯走这里
type SignalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSignalRepository 创建信号归档仓库
func NewSignalRepository(db *sql.DB, logger *zap.Logger) *SignalRepository {
	return &SignalRepository{
		db:     db,
		logger: logger,
	}
}

// AppendSignals 批量归档原始信号（单网关一次上报的全部观测）
func (r *SignalRepository) AppendSignals(ctx context.Context, signals []models.RawSignal) error {
	if len(signals) == 0 {
		return nil
	}

	// 多值INSERT，减少往返
	valueParts := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*4)
	argN := 1
	for _, sig := range signals {
		valueParts = append(valueParts,
			fmt.Sprintf("($%d, $%d, $%d, $%d)", argN, argN+1, argN+2, argN+3))
		args = append(args, sig.BeaconID, sig.GatewayID, sig.RSSI, sig.ObservedAt)
		argN += 4
	}

	query := fmt.Sprintf(`
		INSERT INTO raw_signals (
			beacon_id,
			gateway_id,
			rssi,
			observed_at
		) VALUES %s
	`, strings.Join(valueParts, ", "))

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to append raw signals: %w", err)
	}

	return nil
}

// QueryRawSignals 查询信标在时间段内的归档信号（按时间升序）
func (r *SignalRepository) QueryRawSignals(ctx context.Context, beaconID string, start, end time.Time) ([]models.RawSignal, error) {
	if beaconID == "" {
		return nil, fmt.Errorf("beacon_id is required")
	}

	query := `
		SELECT
			beacon_id,
			gateway_id,
			rssi,
			observed_at
		FROM raw_signals
		WHERE beacon_id = $1
		  AND observed_at >= $2
		  AND observed_at <= $3
		ORDER BY observed_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, beaconID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw signals: %w", err)
	}
	defer rows.Close()

	signals := []models.RawSignal{}
	for rows.Next() {
		var sig models.RawSignal
		err := rows.Scan(
			&sig.BeaconID,
			&sig.GatewayID,
			&sig.RSSI,
			&sig.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw signal: %w", err)
		}
		signals = append(signals, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw signals: %w", err)
	}

	return signals, nil
}

// PurgeBefore 清理指定时刻之前的归档信号，返回删除行数
func (r *SignalRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM raw_signals WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge raw signals: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
