package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/repository"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet = "Schedule"
	maxExportRows = 5000
)

// ScheduleHeader is the first row of the exported schedule.
var ScheduleHeader = []string{
	"Date",
	"Kickoff (UTC)",
	"Location",
	"Age Group",
	"Level",
	"Status",
	"Center Fee",
	"AR Fee",
	"Center",
	"AR",
}

var scheduleColumnWidths = []float64{12, 14, 36, 12, 14, 20, 12, 10, 26, 26}

// ScheduleExporter renders a league's games and officials as an XLSX workbook.
type ScheduleExporter struct {
	pool        *pgxpool.Pool
	leagues     repository.LeagueRepository
	games       repository.GameRepository
	assignments repository.AssignmentRepository
}

// NewScheduleExporter creates a new ScheduleExporter.
func NewScheduleExporter(
	pool *pgxpool.Pool,
	leagues repository.LeagueRepository,
	games repository.GameRepository,
	assignments repository.AssignmentRepository,
) *ScheduleExporter {
	return &ScheduleExporter{pool: pool, leagues: leagues, games: games, assignments: assignments}
}

// Export builds the workbook for the caller's games matching f.
func (e *ScheduleExporter) Export(ctx context.Context, userID uuid.UUID, f domain.GameFilter) ([]byte, error) {
	l, err := e.leagues.FindByUserID(ctx, e.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find league", err)
	}
	if l == nil {
		return nil, domain.ErrNotFound("league for user", userID.String())
	}
	f.LeagueID = &l.ID
	f.Limit, f.Offset = maxExportRows, 0

	games, err := e.games.List(ctx, e.pool, f)
	if err != nil {
		return nil, domain.ErrInternal("list games", err)
	}
	ids := make([]uuid.UUID, len(games))
	for i, g := range games {
		ids[i] = g.ID
	}
	var details []domain.AssignmentDetail
	if len(ids) > 0 {
		details, err = e.assignments.ListByGames(ctx, e.pool, ids)
		if err != nil {
			return nil, domain.ErrInternal("list assignments", err)
		}
	}

	data, err := BuildScheduleWorkbook(games, details)
	if err != nil {
		return nil, domain.ErrInternal("build schedule", err)
	}
	return data, nil
}

// BuildScheduleWorkbook writes one row per game. Official columns show the
// referee holding the active assignment for the role, suffixed when it is
// still awaiting a response.
func BuildScheduleWorkbook(games []domain.Game, details []domain.AssignmentDetail) ([]byte, error) {
	officials := make(map[uuid.UUID]map[domain.AssignmentRole]string, len(games))
	for _, d := range details {
		if !d.Status.Active() {
			continue
		}
		if officials[d.GameID] == nil {
			officials[d.GameID] = make(map[domain.AssignmentRole]string, 2)
		}
		name := d.RefereeName
		if d.Status == domain.AssignmentRequested {
			name += " (requested)"
		}
		officials[d.GameID][d.Role] = name
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(scheduleSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(ScheduleHeader))
	for i, h := range ScheduleHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(scheduleSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(ScheduleHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(scheduleSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range scheduleColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(scheduleSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, g := range games {
		start := g.ScheduledStart.UTC()
		row := []interface{}{
			start.Format("2006-01-02"),
			start.Format("15:04"),
			g.Location,
			g.AgeGroup,
			g.CompetitionLevel,
			string(g.Status),
			g.CenterFee,
			g.ARFee,
			officials[g.ID][domain.RoleCenter],
			arCell(g, officials[g.ID][domain.RoleAR]),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(scheduleSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func arCell(g domain.Game, name string) string {
	if !g.RequiresAR && name == "" {
		return "n/a"
	}
	return name
}
