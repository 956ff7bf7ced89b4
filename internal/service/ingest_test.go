package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFieldBook struct {
	fields []domain.FieldLocation
	added  []FieldInput
}

func (b *fakeFieldBook) ListFields(context.Context, uuid.UUID) ([]domain.FieldLocation, error) {
	return b.fields, nil
}

func (b *fakeFieldBook) AddField(_ context.Context, _ uuid.UUID, in FieldInput) (*domain.FieldLocation, error) {
	b.added = append(b.added, in)
	f := domain.FieldLocation{ID: uuid.New(), Name: in.Name, Address: in.Address, Latitude: in.Latitude, Longitude: in.Longitude}
	b.fields = append(b.fields, f)
	return &f, nil
}

// fakeGameCreator rejects age group "bad" as invalid and "boom" as a server fault.
type fakeGameCreator struct {
	inputs []GameInput
}

func (c *fakeGameCreator) Create(_ context.Context, _ uuid.UUID, in GameInput) (*domain.Game, error) {
	switch in.AgeGroup {
	case "bad":
		return nil, domain.ErrValidationField("age_group", "age group rejected")
	case "boom":
		return nil, errors.New("connection reset")
	}
	c.inputs = append(c.inputs, in)
	return &domain.Game{ID: uuid.New(), ScheduledStart: in.ScheduledStart}, nil
}

type fakeExtractor struct {
	records []ingest.Record
	err     error
	calls   int
	last    string
}

func (e *fakeExtractor) ExtractGames(_ context.Context, text string) ([]ingest.Record, error) {
	e.calls++
	e.last = text
	return e.records, e.err
}

type ingestFixture struct {
	svc    *IngestService
	fields *fakeFieldBook
	games  *fakeGameCreator
	ext    *fakeExtractor
}

func newIngestFixture() *ingestFixture {
	fx := &ingestFixture{fields: &fakeFieldBook{}, games: &fakeGameCreator{}, ext: &fakeExtractor{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fx.svc = NewIngestService(fx.fields, fx.games, fx.ext,
		guard.NewRateLimiter(10, time.Minute), guard.NewCircuitBreaker(2, time.Minute),
		50*time.Millisecond, logger)
	return fx
}

func TestIngestService_ReusesKnownFields(t *testing.T) {
	fx := newIngestFixture()
	known := domain.FieldLocation{ID: uuid.New(), Name: "North 1", Address: "1 Park Rd"}
	fx.fields.fields = []domain.FieldLocation{known}

	csv := "date,time,field,address,center_fee\n" +
		"2030-05-04,09:00,north 1,1 PARK RD,60\n" +
		"2030-05-04,11:00,South 2,,50\n" +
		"2030-05-05,09:00,South 2,,50\n"
	res, err := fx.svc.Import(context.Background(), uuid.New(), IngestInput{Format: ingest.FormatCSV, Data: []byte(csv)})
	require.NoError(t, err)

	assert.Equal(t, 3, res.CreatedGames)
	assert.Equal(t, 1, res.CreatedLocations)
	assert.Zero(t, res.SkippedRows)
	assert.Len(t, res.GameIDs, 3)
	require.Len(t, fx.games.inputs, 3)
	assert.Equal(t, known.ID, *fx.games.inputs[0].FieldLocationID)
	assert.Equal(t, *fx.games.inputs[1].FieldLocationID, *fx.games.inputs[2].FieldLocationID)
	assert.Equal(t, 60.0, fx.games.inputs[0].CenterFee)
	assert.Zero(t, fx.ext.calls)

	require.Len(t, res.Warnings, 1, "South 2 has no coordinates")
	assert.Equal(t, 1, *res.Warnings[0].Row)
}

func TestIngestService_SkipsRejectedRows(t *testing.T) {
	fx := newIngestFixture()
	csv := "date,field,age_group\n2030-05-04,A,U12\n2030-05-04,A,bad\nnever,A,U10\n"
	res, err := fx.svc.Import(context.Background(), uuid.New(), IngestInput{Format: ingest.FormatCSV, Data: []byte(csv)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedGames)
	assert.Equal(t, 2, res.SkippedRows)

	rows := map[int]string{}
	for _, w := range res.Warnings {
		if w.Row != nil {
			rows[*w.Row] = w.Message
		}
	}
	assert.Equal(t, "age group rejected", rows[1])
	assert.Contains(t, rows[2], "scheduled start")

	_, err = fx.svc.Import(context.Background(), uuid.New(), IngestInput{
		Format: ingest.FormatCSV, Data: []byte("date,field,age_group\n2030-05-04,A,boom\n"),
	})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
}

func TestIngestService_Validation(t *testing.T) {
	fx := newIngestFixture()
	ctx := context.Background()

	_, err := fx.svc.Import(ctx, uuid.New(), IngestInput{Format: ingest.FormatCSV})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "file", appErr.Field)

	_, err = fx.svc.Import(ctx, uuid.New(), IngestInput{Format: ingest.FormatJSON, Data: []byte("{")})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)

	_, err = fx.svc.Import(ctx, uuid.New(), IngestInput{Format: ingest.FormatText, Data: []byte("Saturday 9am")})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "use_ai", appErr.Field)
	assert.Zero(t, fx.ext.calls)
}

func TestIngestService_ExtractsFreeText(t *testing.T) {
	fx := newIngestFixture()
	fx.ext.records = []ingest.Record{
		{"scheduled_start": "2030-05-04T09:00:00Z", "field_name": "Riverside", "latitude": "40.1", "longitude": "-74.2"},
	}
	res, err := fx.svc.Import(context.Background(), uuid.New(), IngestInput{
		Format: ingest.FormatText, Data: []byte("U12 Saturday 9am Riverside"), UseAI: true,
	})
	require.NoError(t, err)
	assert.True(t, res.UsedAI)
	assert.Equal(t, 1, res.CreatedGames)
	assert.Equal(t, "U12 Saturday 9am Riverside", fx.ext.last)
	require.Len(t, fx.fields.added, 1)
	assert.InDelta(t, 40.1, *fx.fields.added[0].Latitude, 1e-9)
	assert.Empty(t, res.Warnings)
}

func TestIngestService_ExtractionFailureFallsBackToRows(t *testing.T) {
	fx := newIngestFixture()
	fx.ext.err = errors.New("upstream 502")
	csv := "date,field\n2030-05-04,A\n,B\n"
	res, err := fx.svc.Import(context.Background(), uuid.New(), IngestInput{Format: ingest.FormatCSV, Data: []byte(csv), UseAI: true})
	require.NoError(t, err)
	assert.Equal(t, 1, fx.ext.calls)
	assert.False(t, res.UsedAI)
	assert.Equal(t, 1, res.CreatedGames)
	assert.Equal(t, 1, res.SkippedRows)
	assert.Nil(t, res.Warnings[0].Row)
	assert.Contains(t, res.Warnings[0].Message, "rows used as uploaded")

	_, err = fx.svc.Import(context.Background(), uuid.New(), IngestInput{Format: ingest.FormatText, Data: []byte("x"), UseAI: true})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", appErr.Code)
}

func TestIngestService_DisabledExtractorNeverOpensCircuit(t *testing.T) {
	fx := newIngestFixture()
	fx.ext.err = ingest.ErrExtractorDisabled
	in := IngestInput{Format: ingest.FormatText, Data: []byte("Saturday 9am at A"), UseAI: true}

	for i := 0; i < 4; i++ {
		_, err := fx.svc.Import(context.Background(), uuid.New(), in)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not configured")
	}
	assert.Equal(t, 4, fx.ext.calls)

	fx.ext.err = nil
	fx.ext.records = []ingest.Record{{"scheduled_start": "2030-05-04 09:00", "field": "A"}}
	res, err := fx.svc.Import(context.Background(), uuid.New(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedGames)
}
