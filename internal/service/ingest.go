package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/ingest"
)

const extractCircuitKey = "ai.extract"

type fieldBook interface {
	ListFields(ctx context.Context, userID uuid.UUID) ([]domain.FieldLocation, error)
	AddField(ctx context.Context, userID uuid.UUID, in FieldInput) (*domain.FieldLocation, error)
}

type gameCreator interface {
	Create(ctx context.Context, userID uuid.UUID, in GameInput) (*domain.Game, error)
}

// IngestService imports a league's schedule file as games, creating field
// locations on the way.
type IngestService struct {
	fields    fieldBook
	games     gameCreator
	extractor ingest.Extractor
	limiter   *guard.RateLimiter
	breaker   *guard.CircuitBreaker
	timeout   time.Duration
	logger    *slog.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	fields fieldBook,
	games gameCreator,
	extractor ingest.Extractor,
	limiter *guard.RateLimiter,
	breaker *guard.CircuitBreaker,
	timeout time.Duration,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		fields:    fields,
		games:     games,
		extractor: extractor,
		limiter:   limiter,
		breaker:   breaker,
		timeout:   timeout,
		logger:    logger,
	}
}

// IngestInput is one uploaded schedule.
type IngestInput struct {
	Format ingest.Format
	Data   []byte
	UseAI  bool
}

// IngestResult summarizes an import.
type IngestResult struct {
	CreatedGames     int              `json:"created_games"`
	CreatedLocations int              `json:"created_locations"`
	SkippedRows      int              `json:"skipped_rows"`
	UsedAI           bool             `json:"used_ai"`
	GameIDs          []uuid.UUID      `json:"game_ids"`
	Warnings         []ingest.Warning `json:"warnings"`
}

func uploadWarning(msg string) ingest.Warning {
	return ingest.Warning{Message: msg}
}

func fieldKey(name, address string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(address))
}

// Import parses the upload, optionally lets the extractor recover rows from
// free text or sparse tables, and creates one game per usable row. Rows that
// fail validation are skipped with a warning; the rest are kept.
func (s *IngestService) Import(ctx context.Context, userID uuid.UUID, in IngestInput) (*IngestResult, error) {
	if len(in.Data) == 0 {
		return nil, domain.ErrValidationField("file", "upload is empty")
	}
	records, text, err := ingest.Parse(in.Format, in.Data)
	if err != nil {
		return nil, domain.ErrValidationField("file", err.Error())
	}
	if text != "" && !in.UseAI {
		return nil, domain.ErrValidationField("use_ai", "free-text schedules need use_ai=true")
	}

	res := &IngestResult{GameIDs: []uuid.UUID{}, Warnings: []ingest.Warning{}}

	if in.UseAI && (text != "" || ingest.NeedsExtraction(records)) {
		source := text
		if source == "" {
			source = ingest.RecordsText(records)
		}
		extracted, err := s.extract(ctx, userID, source)
		switch {
		case err == nil && len(extracted) > 0:
			records = extracted
			res.UsedAI = true
		case err == nil:
			res.Warnings = append(res.Warnings, uploadWarning("ai extraction found no games"))
		case len(records) > 0:
			s.logger.Warn("schedule extraction failed, using rows as uploaded", "error", err)
			res.Warnings = append(res.Warnings, uploadWarning("ai extraction unavailable; rows used as uploaded"))
		default:
			return nil, err
		}
	}
	if len(records) == 0 {
		return nil, domain.ErrValidationField("file", "no schedule rows found")
	}

	rows, warnings := ingest.Normalize(records)
	res.Warnings = append(res.Warnings, warnings...)
	res.SkippedRows = len(records) - len(rows)
	if len(rows) == 0 {
		return res, nil
	}

	existing, err := s.fields.ListFields(ctx, userID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]uuid.UUID, len(existing))
	for _, f := range existing {
		known[fieldKey(f.Name, f.Address)] = f.ID
	}

	for _, row := range rows {
		key := fieldKey(row.FieldName, row.Address)
		fieldID, ok := known[key]
		if !ok {
			f, err := s.fields.AddField(ctx, userID, FieldInput{
				Name:      row.FieldName,
				Address:   row.Address,
				Latitude:  row.Latitude,
				Longitude: row.Longitude,
			})
			if err != nil {
				if fatal := s.skipRow(res, row.Index, err); fatal != nil {
					return nil, fatal
				}
				continue
			}
			fieldID = f.ID
			known[key] = fieldID
			res.CreatedLocations++
			if f.Latitude == nil {
				res.Warnings = append(res.Warnings, rowWarningAt(row.Index, "field "+f.Name+" has no coordinates"))
			}
		}

		g, err := s.games.Create(ctx, userID, GameInput{
			FieldLocationID:  &fieldID,
			ScheduledStart:   row.ScheduledStart,
			AgeGroup:         row.AgeGroup,
			CompetitionLevel: row.CompetitionLevel,
			CenterFee:        row.CenterFee,
			ARFee:            row.ARFee,
		})
		if err != nil {
			if fatal := s.skipRow(res, row.Index, err); fatal != nil {
				return nil, fatal
			}
			continue
		}
		res.CreatedGames++
		res.GameIDs = append(res.GameIDs, g.ID)
	}

	s.logger.Info("schedule imported",
		"user_id", userID,
		"format", in.Format,
		"created_games", res.CreatedGames,
		"created_locations", res.CreatedLocations,
		"skipped_rows", res.SkippedRows,
		"used_ai", res.UsedAI,
	)
	return res, nil
}

// skipRow records a client-side row error as a warning and returns nil.
// Server errors are returned and abort the import.
func (s *IngestService) skipRow(res *IngestResult, idx int, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		res.SkippedRows++
		res.Warnings = append(res.Warnings, rowWarningAt(idx, appErr.Message))
		return nil
	}
	return asAppError("import row", err)
}

func rowWarningAt(idx int, msg string) ingest.Warning {
	return ingest.Warning{Row: &idx, Message: msg}
}

func (s *IngestService) extract(ctx context.Context, userID uuid.UUID, source string) ([]ingest.Record, error) {
	if err := s.limiter.Allow(ctx, userID.String()); err != nil {
		return nil, err
	}
	var records []ingest.Record
	err := s.breaker.Execute(ctx, extractCircuitKey, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var callErr error
		records, callErr = s.extractor.ExtractGames(callCtx, source)
		if callErr != nil && (ctx.Err() != nil || errors.Is(callErr, ingest.ErrExtractorDisabled)) {
			return guard.Uncounted(callErr)
		}
		return callErr
	})
	if err == nil {
		return records, nil
	}
	var appErr *domain.AppError
	switch {
	case errors.Is(err, ingest.ErrExtractorDisabled):
		return nil, domain.ErrExternalService(err.Error(), err)
	case errors.As(err, &appErr):
		return nil, appErr
	}
	return nil, domain.ErrExternalService("schedule extraction unavailable", err)
}
