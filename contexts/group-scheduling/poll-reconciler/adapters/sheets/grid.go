package sheetsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rollcall/contexts/group-scheduling/poll-reconciler/domain/services"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Config locates the roster spreadsheet and its fixed layout. Column indices
// are zero-based; option columns occupy everything from FirstOptionColumn
// rightward.
type Config struct {
	SpreadsheetID     string
	SheetName         string
	CredentialsFile   string
	MobileColumn      int
	LastVotedColumn   int
	FirstOptionColumn int
}

// Grid implements the attendance store against a Google Sheet. Rows are
// 1-indexed sheet rows with the header in row 1, so the first roster row is 2.
type Grid struct {
	service *sheets.Service
	config  Config
	logger  *slog.Logger
}

// NewGrid builds a Sheets client. With no credentials file configured the
// client falls back to Application Default Credentials, which is how the
// service authenticates when deployed.
func NewGrid(ctx context.Context, config Config, logger *slog.Logger) (*Grid, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(config.SpreadsheetID) == "" {
		return nil, fmt.Errorf("sheets grid: spreadsheet id is required")
	}
	if strings.TrimSpace(config.SheetName) == "" {
		return nil, fmt.Errorf("sheets grid: sheet name is required")
	}
	opts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if strings.TrimSpace(config.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(strings.TrimSpace(config.CredentialsFile)))
	}
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets grid: build service: %w", err)
	}
	return &Grid{
		service: service,
		config:  config,
		logger:  logger,
	}, nil
}

// FindRow locates the voter by mobile number. Roster cells hold phones in
// assorted formats, so both sides are reduced to digits, with a bare
// ten-digit number treated as US-country-coded. The voter name is not used
// for matching; phone is the identity the gateway reports.
func (g *Grid) FindRow(ctx context.Context, voterID string, _ string) (ports.RowRef, bool, error) {
	wanted := normalizePhone(voterID)
	if wanted == "" {
		return 0, false, nil
	}
	values, err := g.service.Spreadsheets.Values.
		Get(g.config.SpreadsheetID, fmt.Sprintf("'%s'", g.config.SheetName)).
		Context(ctx).
		Do()
	if err != nil {
		return 0, false, g.logError("reconciler_grid_read_failed", err)
	}
	if len(values.Values) < 2 {
		return 0, false, nil
	}
	for index, row := range values.Values[1:] {
		if g.config.MobileColumn >= len(row) {
			continue
		}
		cell := fmt.Sprint(row[g.config.MobileColumn])
		if normalizePhone(cell) == wanted {
			return ports.RowRef(index + 2), true, nil
		}
	}
	return 0, false, nil
}

// FindColumn matches a label against the option headers, exact and
// case-sensitive, leftmost first. Columns before FirstOptionColumn hold
// roster fields and never match.
func (g *Grid) FindColumn(ctx context.Context, label string) (ports.ColumnRef, bool, error) {
	values, err := g.service.Spreadsheets.Values.
		Get(g.config.SpreadsheetID, fmt.Sprintf("'%s'!1:1", g.config.SheetName)).
		Context(ctx).
		Do()
	if err != nil {
		return 0, false, g.logError("reconciler_grid_read_headers_failed", err)
	}
	if len(values.Values) == 0 {
		return 0, false, nil
	}
	headers := make([]string, 0, len(values.Values[0]))
	for _, cell := range values.Values[0] {
		headers = append(headers, fmt.Sprint(cell))
	}
	if g.config.FirstOptionColumn >= len(headers) {
		return 0, false, nil
	}
	index, ok := services.FindColumn(label, headers[g.config.FirstOptionColumn:])
	if !ok {
		return 0, false, nil
	}
	return ports.ColumnRef(g.config.FirstOptionColumn + index), true, nil
}

func (g *Grid) WriteMark(ctx context.Context, row ports.RowRef, column ports.ColumnRef, attending bool) error {
	mark := "n"
	if attending {
		mark = "y"
	}
	return g.writeCell(ctx, int(row), int(column), mark)
}

// WriteLastVoted stamps the roster's last-voted column in M/D/YY form, the
// format the rest of the sheet uses.
func (g *Grid) WriteLastVoted(ctx context.Context, row ports.RowRef, votedAt time.Time) error {
	stamp := votedAt.UTC()
	value := fmt.Sprintf("%d/%d/%d", int(stamp.Month()), stamp.Day(), stamp.Year()%100)
	return g.writeCell(ctx, int(row), g.config.LastVotedColumn, value)
}

func (g *Grid) writeCell(ctx context.Context, row int, column int, value string) error {
	cell := fmt.Sprintf("'%s'!%s%d", g.config.SheetName, columnLetter(column), row)
	_, err := g.service.Spreadsheets.Values.
		Update(g.config.SpreadsheetID, cell, &sheets.ValueRange{
			Values: [][]any{{value}},
		}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return g.logError("reconciler_grid_write_failed", err, "cell", cell)
	}
	return nil
}

func (g *Grid) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "group-scheduling/poll-reconciler",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	g.logger.Error("attendance grid operation failed", fields...)
	return err
}

// normalizePhone reduces a phone or chat identity to digits. Ten digits get
// the US country code prefixed so sheet entries like (310) 600-1023 line up
// with gateway identities like 13106001023.
func normalizePhone(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	phone := digits.String()
	if len(phone) == 10 {
		phone = "1" + phone
	}
	return phone
}

// columnLetter converts a zero-based column index to A1 notation letters.
func columnLetter(index int) string {
	letters := ""
	for index >= 0 {
		letters = string(rune('A'+index%26)) + letters
		index = index/26 - 1
	}
	return letters
}

var _ ports.AttendanceStore = (*Grid)(nil)
