//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every application table. CASCADE takes care of FK order.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"messages",
		"availability_slots",
		"ref_notes",
		"ratings",
		"assignments",
		"games",
		"field_locations",
		"leagues",
		"referee_profiles",
		"users",
		"event_outbox",
		"login_attempts",
	}

	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
