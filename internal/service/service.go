// Package service holds the transactional use cases behind the HTTP API.
package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/domain"
)

// asAppError passes domain errors through and wraps everything else as internal.
func asAppError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return domain.ErrInternal(msg, err)
}

// inTx runs fn in a transaction, committing when it returns nil.
func inTx(ctx context.Context, pool *pgxpool.Pool, msg string, fn func(tx pgx.Tx) error) error {
	return asAppError(msg, pgx.BeginFunc(ctx, pool, fn))
}

// Notifier pushes realtime payloads to a user's open connections.
type Notifier interface {
	PublishToUser(userID string, v interface{})
}

type noopNotifier struct{}

func (noopNotifier) PublishToUser(string, interface{}) {}
