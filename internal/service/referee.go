package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/projection"
	"github.com/refnexus/platform/internal/repository"
	"github.com/refnexus/platform/internal/search"
	"golang.org/x/sync/errgroup"
)

const notesFanOut = 8

// RefereeService covers referee profiles, their derived stats, ratings,
// notes, availability and the structured search.
type RefereeService struct {
	pool         *pgxpool.Pool
	referees     repository.RefereeRepository
	leagues      repository.LeagueRepository
	games        repository.GameRepository
	ratings      repository.RatingRepository
	availability repository.AvailabilityRepository
	outbox       repository.OutboxRepository
	stats        *projection.StatsCache
	geocoder     search.Geocoder
}

// NewRefereeService creates a new RefereeService.
func NewRefereeService(
	pool *pgxpool.Pool,
	referees repository.RefereeRepository,
	leagues repository.LeagueRepository,
	games repository.GameRepository,
	ratings repository.RatingRepository,
	availability repository.AvailabilityRepository,
	outbox repository.OutboxRepository,
	stats *projection.StatsCache,
	geocoder search.Geocoder,
) *RefereeService {
	return &RefereeService{
		pool:         pool,
		referees:     referees,
		leagues:      leagues,
		games:        games,
		ratings:      ratings,
		availability: availability,
		outbox:       outbox,
		stats:        stats,
		geocoder:     geocoder,
	}
}

// Mine returns the caller's referee profile.
func (s *RefereeService) Mine(ctx context.Context, userID uuid.UUID) (*domain.RefereeProfile, error) {
	p, err := s.referees.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find referee", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("referee profile for user", userID.String())
	}
	return p, nil
}

// UpdateMine applies a partial update to the caller's profile.
func (s *RefereeService) UpdateMine(ctx context.Context, userID uuid.UUID, u domain.RefereeProfileUpdate) (*domain.RefereeProfile, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	var out *domain.RefereeProfile
	err := inTx(ctx, s.pool, "update referee", func(tx pgx.Tx) error {
		p, err := s.referees.FindByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrNotFound("referee profile for user", userID.String())
		}
		u.Apply(p)
		if err := domain.ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
			return domain.ErrValidationField("latitude", err.Error())
		}
		if err := s.referees.Update(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Get returns a referee profile annotated with stats visible to the viewer.
func (s *RefereeService) Get(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*domain.RefereeWithStats, error) {
	p, err := s.referees.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find referee", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("referee", id.String())
	}
	stats, err := s.Stats(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return &domain.RefereeWithStats{RefereeProfile: *p, Stats: *stats}, nil
}

// Stats derives a referee's stats: accepted games, rating mean and the most
// recent notes the viewer may read.
func (s *RefereeService) Stats(ctx context.Context, viewer auth.Principal, id uuid.UUID) (*domain.RefereeStats, error) {
	p, err := s.referees.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find referee", err)
	}
	if p == nil {
		return nil, domain.ErrNotFound("referee", id.String())
	}

	leagueID, err := s.viewerLeague(ctx, viewer)
	if err != nil {
		return nil, err
	}

	aggs, err := s.aggregates(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	notes, err := s.ratings.ListVisibleNotes(ctx, s.pool, id, leagueID, domain.RecentNotesLimit)
	if err != nil {
		return nil, domain.ErrInternal("list notes", err)
	}
	stats := statsFrom(aggs[id], notes)
	return &stats, nil
}

func statsFrom(agg domain.RatingAggregate, notes []domain.RefNote) domain.RefereeStats {
	if notes == nil {
		notes = []domain.RefNote{}
	}
	return domain.RefereeStats{
		TotalGames:    agg.TotalGames,
		AverageRating: agg.AverageRating,
		RatingCount:   agg.RatingCount,
		RecentNotes:   notes,
	}
}

// aggregates reads through the stats cache.
func (s *RefereeService) aggregates(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.RatingAggregate, error) {
	hits, misses := s.stats.GetMany(ctx, ids)
	if len(misses) == 0 {
		return hits, nil
	}
	fresh, err := s.ratings.Aggregates(ctx, s.pool, misses)
	if err != nil {
		return nil, domain.ErrInternal("load rating aggregates", err)
	}
	s.stats.PutMany(ctx, fresh)
	for id, agg := range fresh {
		hits[id] = agg
	}
	return hits, nil
}

// viewerLeague returns the caller's league id, or nil for referees.
func (s *RefereeService) viewerLeague(ctx context.Context, viewer auth.Principal) (*uuid.UUID, error) {
	if viewer.Role != domain.RoleLeague {
		return nil, nil
	}
	l, err := s.leagues.FindByUserID(ctx, s.pool, viewer.UserID)
	if err != nil {
		return nil, domain.ErrInternal("find league", err)
	}
	if l == nil {
		return nil, nil
	}
	return &l.ID, nil
}

func (s *RefereeService) requireLeague(ctx context.Context, db repository.DBTX, userID uuid.UUID) (*domain.League, error) {
	l, err := s.leagues.FindByUserID(ctx, db, userID)
	if err != nil {
		return nil, domain.ErrInternal("find league", err)
	}
	if l == nil {
		return nil, domain.ErrNotFound("league for user", userID.String())
	}
	return l, nil
}

// RatingInput is a league's rating of a referee for a game.
type RatingInput struct {
	GameID  uuid.UUID `json:"game_id"`
	Score   int       `json:"score"`
	Comment string    `json:"comment"`
}

// ListRatings returns a referee's ratings newest first.
func (s *RefereeService) ListRatings(ctx context.Context, refereeID uuid.UUID) ([]domain.Rating, error) {
	if err := s.ensureReferee(ctx, refereeID); err != nil {
		return nil, err
	}
	out, err := s.ratings.ListRatings(ctx, s.pool, refereeID)
	if err != nil {
		return nil, domain.ErrInternal("list ratings", err)
	}
	return out, nil
}

// Rate records a rating by the caller's league for one of its games.
func (s *RefereeService) Rate(ctx context.Context, userID, refereeID uuid.UUID, in RatingInput) (*domain.Rating, error) {
	if err := domain.ValidateScore(in.Score); err != nil {
		return nil, domain.ErrValidationField("score", err.Error())
	}
	if in.GameID == uuid.Nil {
		return nil, domain.ErrValidationField("game_id", "game_id is required")
	}

	rating := &domain.Rating{
		ID:        uuid.New(),
		RefereeID: refereeID,
		GameID:    in.GameID,
		Score:     in.Score,
		Comment:   strings.TrimSpace(in.Comment),
	}
	err := inTx(ctx, s.pool, "create rating", func(tx pgx.Tx) error {
		league, err := s.requireLeague(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.ensureRefereeIn(ctx, tx, refereeID); err != nil {
			return err
		}
		if err := s.ensureOwnGame(ctx, tx, league.ID, in.GameID); err != nil {
			return err
		}
		rating.LeagueID = league.ID
		if err := s.ratings.CreateRating(ctx, tx, rating); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewEvent(domain.AggregateReferee, refereeID, domain.EventRatingCreated, rating))
	})
	if err != nil {
		return nil, err
	}
	s.stats.Invalidate(ctx, refereeID)
	return rating, nil
}

// NoteInput is a league's note about a referee.
type NoteInput struct {
	GameID     *uuid.UUID            `json:"game_id"`
	NoteText   string                `json:"note_text"`
	Visibility domain.NoteVisibility `json:"visibility"`
}

// ListNotes returns the notes about a referee visible to the viewer, newest first.
func (s *RefereeService) ListNotes(ctx context.Context, viewer auth.Principal, refereeID uuid.UUID) ([]domain.RefNote, error) {
	if err := s.ensureReferee(ctx, refereeID); err != nil {
		return nil, err
	}
	leagueID, err := s.viewerLeague(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out, err := s.ratings.ListVisibleNotes(ctx, s.pool, refereeID, leagueID, 0)
	if err != nil {
		return nil, domain.ErrInternal("list notes", err)
	}
	return out, nil
}

// AddNote records a note by the caller's league. Visibility defaults to private.
func (s *RefereeService) AddNote(ctx context.Context, userID, refereeID uuid.UUID, in NoteInput) (*domain.RefNote, error) {
	text := strings.TrimSpace(in.NoteText)
	if text == "" {
		return nil, domain.ErrValidationField("note_text", "note_text is required")
	}
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityPrivate
	}
	if !in.Visibility.Valid() {
		return nil, domain.ErrValidationField("visibility", "visibility must be private_to_league or global")
	}

	note := &domain.RefNote{
		ID:         uuid.New(),
		RefereeID:  refereeID,
		GameID:     in.GameID,
		NoteText:   text,
		Visibility: in.Visibility,
	}
	err := inTx(ctx, s.pool, "create note", func(tx pgx.Tx) error {
		league, err := s.requireLeague(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.ensureRefereeIn(ctx, tx, refereeID); err != nil {
			return err
		}
		if in.GameID != nil {
			if err := s.ensureOwnGame(ctx, tx, league.ID, *in.GameID); err != nil {
				return err
			}
		}
		note.LeagueID = league.ID
		return s.ratings.CreateNote(ctx, tx, note)
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *RefereeService) ensureReferee(ctx context.Context, id uuid.UUID) error {
	return asAppError("find referee", s.ensureRefereeIn(ctx, s.pool, id))
}

func (s *RefereeService) ensureRefereeIn(ctx context.Context, db repository.DBTX, id uuid.UUID) error {
	p, err := s.referees.FindByID(ctx, db, id)
	if err != nil {
		return err
	}
	if p == nil {
		return domain.ErrNotFound("referee", id.String())
	}
	return nil
}

func (s *RefereeService) ensureOwnGame(ctx context.Context, db repository.DBTX, leagueID, gameID uuid.UUID) error {
	g, err := s.games.FindByID(ctx, db, gameID)
	if err != nil {
		return err
	}
	if g == nil || g.LeagueID != leagueID {
		return domain.ErrNotFound("game", gameID.String())
	}
	return nil
}

// AvailabilityInput is a new availability window.
type AvailabilityInput struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// ListAvailability returns the caller's slots ordered by start.
func (s *RefereeService) ListAvailability(ctx context.Context, userID uuid.UUID) ([]domain.AvailabilitySlot, error) {
	p, err := s.Mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.availability.ListByReferee(ctx, s.pool, p.ID)
	if err != nil {
		return nil, domain.ErrInternal("list availability", err)
	}
	return out, nil
}

// AddAvailability stores a slot for the caller. Overlapping slots are allowed.
func (s *RefereeService) AddAvailability(ctx context.Context, userID uuid.UUID, in AvailabilityInput) (*domain.AvailabilitySlot, error) {
	if err := domain.ValidateTimeRange(in.StartTime, in.EndTime); err != nil {
		return nil, domain.ErrValidationField("end_time", err.Error())
	}
	p, err := s.Mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	slot := &domain.AvailabilitySlot{
		ID:        uuid.New(),
		RefereeID: p.ID,
		StartTime: in.StartTime.UTC(),
		EndTime:   in.EndTime.UTC(),
	}
	if err := s.availability.Create(ctx, s.pool, slot); err != nil {
		return nil, domain.ErrInternal("create availability", err)
	}
	return slot, nil
}

// DeleteAvailability removes one of the caller's slots.
func (s *RefereeService) DeleteAvailability(ctx context.Context, userID, slotID uuid.UUID) error {
	p, err := s.Mine(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.availability.Delete(ctx, s.pool, slotID, p.ID)
	if err != nil {
		return domain.ErrInternal("delete availability", err)
	}
	if !ok {
		return domain.ErrNotFound("availability slot", slotID.String())
	}
	return nil
}

// Search runs the structured referee search. Geocoding, profile loading and
// availability loading run concurrently; aggregates follow once the
// candidate ids are known.
func (s *RefereeService) Search(ctx context.Context, viewer auth.Principal, q search.Query) ([]domain.RefereeWithStats, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.Sort == "" {
		q.Sort = search.SortRating
	}

	var (
		profiles []domain.RefereeProfile
		slots    map[uuid.UUID][]domain.AvailabilitySlot
	)
	g, gctx := errgroup.WithContext(ctx)
	if q.NeedsGeocode() {
		g.Go(func() error {
			p, err := s.geocoder.Geocode(gctx, q.Location)
			if errors.Is(err, search.ErrLocationNotFound) {
				return domain.ErrValidationField("location", "location could not be resolved")
			}
			if err != nil {
				return domain.ErrExternalService("geocoding unavailable", err)
			}
			q.Origin = p
			return nil
		})
	}
	g.Go(func() error {
		var err error
		profiles, err = s.referees.List(gctx, s.pool)
		return err
	})
	if q.AvailableStart != nil && q.AvailableEnd != nil {
		g.Go(func() error {
			var err error
			slots, err = s.availability.ListCovering(gctx, s.pool, *q.AvailableStart, *q.AvailableEnd)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, asAppError("load search candidates", err)
	}

	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	aggs, err := s.aggregates(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]search.Candidate, len(profiles))
	for i, p := range profiles {
		candidates[i] = search.Candidate{Profile: p, Aggregate: aggs[p.ID], Slots: slots[p.ID]}
	}
	results := search.Filter(candidates, q)

	leagueID, err := s.viewerLeague(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, results, leagueID)
}

// annotate attaches recent visible notes to each result.
func (s *RefereeService) annotate(ctx context.Context, results []search.Result, leagueID *uuid.UUID) ([]domain.RefereeWithStats, error) {
	out := make([]domain.RefereeWithStats, len(results))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(notesFanOut)
	for i := range results {
		i := i
		g.Go(func() error {
			r := results[i]
			notes, err := s.ratings.ListVisibleNotes(gctx, s.pool, r.Profile.ID, leagueID, domain.RecentNotesLimit)
			if err != nil {
				return err
			}
			out[i] = domain.RefereeWithStats{
				RefereeProfile: r.Profile,
				Stats:          statsFrom(r.Aggregate, notes),
				DistanceKm:     r.DistanceKm,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.ErrInternal("load notes", err)
	}
	return out, nil
}

// ByIDs returns profiles with stats for ids, preserving order and dropping
// unknown ids.
func (s *RefereeService) ByIDs(ctx context.Context, viewer auth.Principal, ids []uuid.UUID) ([]domain.RefereeWithStats, error) {
	if len(ids) == 0 {
		return []domain.RefereeWithStats{}, nil
	}
	profiles, err := s.referees.ListByIDs(ctx, s.pool, ids)
	if err != nil {
		return nil, domain.ErrInternal("load referees", err)
	}
	byID := make(map[uuid.UUID]domain.RefereeProfile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}
	aggs, err := s.aggregates(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		results = append(results, search.Result{Candidate: search.Candidate{Profile: p, Aggregate: aggs[id]}})
	}

	leagueID, err := s.viewerLeague(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, results, leagueID)
}

// Roster returns every referee with cached aggregates, for AI context.
func (s *RefereeService) Roster(ctx context.Context) ([]search.Candidate, error) {
	profiles, err := s.referees.List(ctx, s.pool)
	if err != nil {
		return nil, domain.ErrInternal("load referees", err)
	}
	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	aggs, err := s.aggregates(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]search.Candidate, len(profiles))
	for i, p := range profiles {
		out[i] = search.Candidate{Profile: p, Aggregate: aggs[p.ID]}
	}
	return out, nil
}
