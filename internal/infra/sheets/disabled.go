package sheets

import (
	"context"

	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"

	"github.com/sirupsen/logrus"
)

// DisabledRepository is the fallback used when Google Sheets is unreachable
// or credentials are missing. Every write logs and no-ops, every read
// returns empty: the messaging surface stays responsive at the cost of
// silently discarded writes.
type DisabledRepository struct {
	logger *logrus.Entry
}

func NewDisabledRepository(logger *logrus.Entry) *DisabledRepository {
	return &DisabledRepository{logger: logger}
}

func (r *DisabledRepository) UpsertAttendance(_ context.Context, date, userID, participant string, status attendance.Status) error {
	r.logger.Warnf("Skipping UpsertAttendance because Google Sheets is unavailable: %s, %s, %s, %s", date, userID, participant, status)
	return nil
}

func (r *DisabledRepository) UpdateSpeakerFlags(_ context.Context, date string, speakerIDs []string) error {
	r.logger.Warnf("Skipping UpdateSpeakerFlags because Google Sheets is unavailable: %s, %v", date, speakerIDs)
	return nil
}

func (r *DisabledRepository) UpdateTopic(_ context.Context, date, userID, _ string) error {
	r.logger.Warnf("Skipping UpdateTopic because Google Sheets is unavailable: %s, %s", date, userID)
	return nil
}

func (r *DisabledRepository) ListByDate(_ context.Context, date string) ([]attendance.Record, error) {
	r.logger.Warnf("Returning empty records because Google Sheets is unavailable: %s", date)
	return []attendance.Record{}, nil
}
