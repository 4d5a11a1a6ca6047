package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

func setupMockAlertDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlertRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewAlertRepository(db, logger)

	return db, mock, repo
}

func TestAppendAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()
	event := &models.ZoneAlertEvent{
		EventID:     "event-1",
		BeaconID:    "beacon-1",
		ZoneID:      "zone-1",
		AlertType:   models.AlertEntry,
		X:           5.0,
		Y:           5.0,
		TriggeredAt: now,
	}

	mock.ExpectExec(`INSERT INTO zone_alert_events`).
		WithArgs("event-1", "beacon-1", "zone-1", models.AlertEntry, 5.0, 5.0, now, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendAlert(ctx, event)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendAlert_GeneratesEventID(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	event := &models.ZoneAlertEvent{
		BeaconID:    "beacon-1",
		ZoneID:      "zone-1",
		AlertType:   models.AlertExit,
		TriggeredAt: time.Now(),
	}

	mock.ExpectExec(`INSERT INTO zone_alert_events`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendAlert(context.Background(), event)

	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE zone_alert_events`).
		WithArgs("event-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AcknowledgeAlert(context.Background(), "event-1")

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE zone_alert_events`).
		WithArgs("event-missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AcknowledgeAlert(context.Background(), "event-missing")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecentAlerts_Success(t *testing.T) {
	db, mock, repo := setupMockAlertDB(t)
	defer db.Close()

	now := time.Now()
	since := now.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{
		"event_id", "beacon_id", "zone_id", "alert_type",
		"x_position", "y_position", "triggered_at", "acknowledged",
	}).AddRow(
		"event-2", "beacon-1", "zone-1", "exit", 11.0, 5.0, now, false,
	).AddRow(
		"event-1", "beacon-1", "zone-1", "entry", 5.0, 5.0, now.Add(-time.Minute), true,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(since, 100).
		WillReturnRows(rows)

	events, err := repo.GetRecentAlerts(context.Background(), since, 0)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AlertExit, events[0].AlertType)
	assert.True(t, events[1].Acknowledged)

	require.NoError(t, mock.ExpectationsWereMet())
}
