package sheets

import (
	"context"
	"fmt"

	"github.com/Meru-dog/study-group-bot/internal/domain/attendance"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

const worksheetTitle = "出席管理"

// Column layout of the attendance worksheet. The legacy layout predates the
// user-ID column; ensureHeaders migrates it in place.
var currentHeaders = []string{"日付", "参加者", "対面/オンライン", "発表の有無", "発表テーマ", "SlackユーザーID"}
var legacyHeaders = currentHeaders[:5]

var sheetsScopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// Repository is the live Google Sheets implementation of
// attendance.Repository.
type Repository struct {
	svc           *sheetsapi.Service
	spreadsheetID string
	logger        *logrus.Entry
}

// NewRepository authenticates against Google Sheets and ensures the
// attendance worksheet exists. A returned error means the caller should fall
// back to the disabled repository; the choice is made once at startup.
func NewRepository(ctx context.Context, spreadsheetID, serviceAccountJSON string, logger *logrus.Entry) (*Repository, error) {
	var opts []option.ClientOption
	if serviceAccountJSON != "" {
		creds, err := google.CredentialsFromJSON(ctx, []byte(serviceAccountJSON), sheetsScopes...)
		if err != nil {
			return nil, fmt.Errorf("error parsing GOOGLE_SERVICE_ACCOUNT_JSON credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
		logger.Info("Using GOOGLE_SERVICE_ACCOUNT_JSON for Google Sheets authentication")
	} else {
		creds, err := google.FindDefaultCredentials(ctx, sheetsScopes...)
		if err != nil {
			return nil, fmt.Errorf("google credentials not found, set GOOGLE_SERVICE_ACCOUNT_JSON or configure Application Default Credentials: %w", err)
		}
		opts = append(opts, option.WithCredentials(creds))
		logger.Info("Using Application Default Credentials for Google Sheets authentication")
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating Google Sheets service: %w", err)
	}

	r := &Repository{svc: svc, spreadsheetID: spreadsheetID, logger: logger}
	if err := r.ensureWorksheet(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func rng(a1 string) string {
	return fmt.Sprintf("%s!%s", worksheetTitle, a1)
}

func (r *Repository) ensureWorksheet(ctx context.Context) error {
	spreadsheet, err := r.svc.Spreadsheets.Get(r.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error fetching spreadsheet %s: %w", r.spreadsheetID, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == worksheetTitle {
			return nil
		}
	}

	r.logger.Infof("Worksheet %q not found, creating it", worksheetTitle)
	_, err = r.svc.Spreadsheets.BatchUpdate(r.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{
					Title: worksheetTitle,
					GridProperties: &sheetsapi.GridProperties{
						RowCount:    2000,
						ColumnCount: 10,
					},
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error creating worksheet %q: %w", worksheetTitle, err)
	}
	return r.writeHeaders(ctx)
}

func (r *Repository) writeHeaders(ctx context.Context) error {
	row := make([]interface{}, len(currentHeaders))
	for i, h := range currentHeaders {
		row[i] = h
	}
	_, err := r.svc.Spreadsheets.Values.Update(r.spreadsheetID, rng("A1:F1"), &sheetsapi.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error writing worksheet headers: %w", err)
	}
	return nil
}

// ensureHeaders migrates a legacy 5-column header row to the current
// 6-column layout in place, leaving data rows untouched. An already-current
// header is a no-op; anything else is left alone with a warning.
func (r *Repository) ensureHeaders(ctx context.Context) error {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, rng("A1:F1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error reading worksheet headers: %w", err)
	}
	var first []string
	if len(resp.Values) > 0 {
		for _, cell := range resp.Values[0] {
			first = append(first, fmt.Sprint(cell))
		}
	}

	switch headerAction(first) {
	case headerWrite:
		return r.writeHeaders(ctx)
	case headerMigrate:
		r.logger.Info("Migrating legacy worksheet headers to the current layout")
		return r.writeHeaders(ctx)
	case headerUnexpected:
		r.logger.Warnf("Unexpected sheet headers detected: %v", first)
	}
	return nil
}

type headerState int

const (
	headerCurrent headerState = iota
	headerWrite
	headerMigrate
	headerUnexpected
)

func headerAction(first []string) headerState {
	if len(first) == 0 {
		return headerWrite
	}
	if equalStrings(first, legacyHeaders) {
		return headerMigrate
	}
	if equalStrings(first, currentHeaders) {
		return headerCurrent
	}
	return headerUnexpected
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// recordFromRow maps one worksheet data row to a Record. Short rows are
// padded; the legacy layout simply yields an empty UserID.
func recordFromRow(row []interface{}) attendance.Record {
	cell := func(i int) string {
		if i < len(row) {
			return fmt.Sprint(row[i])
		}
		return ""
	}
	return attendance.Record{
		Date:        cell(0),
		Participant: cell(1),
		Status:      attendance.Status(cell(2)),
		Speaker:     cell(3) == attendance.SpeakerMark,
		Topic:       cell(4),
		UserID:      cell(5),
	}
}

// fetchRecords reads every data row. The returned slice index i corresponds
// to worksheet row i+2 (row 1 holds the headers).
func (r *Repository) fetchRecords(ctx context.Context) ([]attendance.Record, error) {
	resp, err := r.svc.Spreadsheets.Values.Get(r.spreadsheetID, rng("A2:F")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("error reading worksheet rows: %w", err)
	}
	records := make([]attendance.Record, 0, len(resp.Values))
	for _, row := range resp.Values {
		records = append(records, recordFromRow(row))
	}
	return records, nil
}

// findRow returns the worksheet row number of the record for (date, userID),
// falling back to display-name matching for rows written under the legacy
// schema, or 0 when absent.
func findRow(records []attendance.Record, date, userID, participant string) int {
	for i, rec := range records {
		if rec.Date != date {
			continue
		}
		if rec.UserID != "" && rec.UserID == userID {
			return i + 2
		}
		if rec.UserID == "" && participant != "" && rec.Participant == participant {
			return i + 2
		}
	}
	return 0
}

func (r *Repository) updateCells(ctx context.Context, a1 string, values [][]interface{}) error {
	_, err := r.svc.Spreadsheets.Values.Update(r.spreadsheetID, rng(a1), &sheetsapi.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error updating range %s: %w", a1, err)
	}
	return nil
}

func (r *Repository) UpsertAttendance(ctx context.Context, date, userID, participant string, status attendance.Status) error {
	if err := r.ensureHeaders(ctx); err != nil {
		return err
	}
	records, err := r.fetchRecords(ctx)
	if err != nil {
		return err
	}

	if row := findRow(records, date, userID, participant); row != 0 {
		if err := r.updateCells(ctx, fmt.Sprintf("B%d:C%d", row, row), [][]interface{}{{participant, string(status)}}); err != nil {
			return err
		}
		return r.updateCells(ctx, fmt.Sprintf("F%d", row), [][]interface{}{{userID}})
	}

	_, err = r.svc.Spreadsheets.Values.Append(r.spreadsheetID, rng("A1:F1"), &sheetsapi.ValueRange{
		Values: [][]interface{}{{date, participant, string(status), "", "", userID}},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("error appending attendance row: %w", err)
	}
	return nil
}

// UpdateSpeakerFlags rewrites the speaker column for every row of the date
// from the given roster. Reads current rows, recomputes each flag, writes
// them back: idempotent, self-heals missed updates, but two overlapping
// calls can interleave at row granularity.
func (r *Repository) UpdateSpeakerFlags(ctx context.Context, date string, speakerIDs []string) error {
	records, err := r.fetchRecords(ctx)
	if err != nil {
		return err
	}
	speakers := make(map[string]bool, len(speakerIDs))
	for _, id := range speakerIDs {
		speakers[id] = true
	}
	for i, rec := range records {
		if rec.Date != date {
			continue
		}
		value := ""
		if speakers[rec.UserID] {
			value = attendance.SpeakerMark
		}
		if err := r.updateCells(ctx, fmt.Sprintf("D%d", i+2), [][]interface{}{{value}}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) UpdateTopic(ctx context.Context, date, userID, topic string) error {
	records, err := r.fetchRecords(ctx)
	if err != nil {
		return err
	}
	row := findRow(records, date, userID, "")
	if row == 0 {
		return nil
	}
	return r.updateCells(ctx, fmt.Sprintf("E%d", row), [][]interface{}{{topic}})
}

func (r *Repository) ListByDate(ctx context.Context, date string) ([]attendance.Record, error) {
	records, err := r.fetchRecords(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]attendance.Record, 0, len(records))
	for _, rec := range records {
		if rec.Date == date {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}
