package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
)

// principal returns the authenticated caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		RespondError(w, r, domain.ErrUnauthorized("no auth context"))
	}
	return p, ok
}

// uuidParam parses a chi URL parameter or writes 400.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		RespondError(w, r, domain.ErrValidationField(name, "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// queryParser accumulates the first parse error over a request's query string.
type queryParser struct {
	values  map[string][]string
	problem *domain.AppError
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{values: r.URL.Query()}
}

func (q *queryParser) raw(name string) string {
	if v := q.values[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *queryParser) fail(name, msg string) {
	if q.problem == nil {
		q.problem = domain.ErrValidationField(name, msg)
	}
}

func (q *queryParser) Text(name string) string {
	return q.raw(name)
}

func (q *queryParser) Float(name string) *float64 {
	s := q.raw(name)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		q.fail(name, name+" must be a number")
		return nil
	}
	return &f
}

func (q *queryParser) Int(name string, def int) int {
	s := q.raw(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		q.fail(name, name+" must be an integer")
		return def
	}
	return n
}

func (q *queryParser) Bool(name string) bool {
	s := q.raw(name)
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		q.fail(name, name+" must be true or false")
	}
	return b
}

// Time accepts RFC 3339 timestamps or bare dates.
func (q *queryParser) Time(name string) *time.Time {
	s := q.raw(name)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	q.fail(name, name+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return nil
}

// Err returns the first problem, if any.
func (q *queryParser) Err() error {
	if q.problem == nil {
		return nil
	}
	return q.problem
}

// gameFilter reads status/from/to/limit/offset.
func gameFilter(q *queryParser) domain.GameFilter {
	f := domain.GameFilter{
		From:   q.Time("from"),
		To:     q.Time("to"),
		Limit:  q.Int("limit", 0),
		Offset: q.Int("offset", 0),
	}
	if s := q.Text("status"); s != "" {
		st := domain.GameStatus(s)
		f.Status = &st
	}
	if f.Offset < 0 {
		q.fail("offset", "offset must be >= 0")
	}
	return f
}
