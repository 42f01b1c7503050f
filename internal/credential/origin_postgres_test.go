package credential

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hmac-gateway/internal/common/errors"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *string:
			*p = r.values[i].(string)
		case *sql.NullString:
			if r.values[i] == nil {
				*p = sql.NullString{}
			} else {
				*p = sql.NullString{String: r.values[i].(string), Valid: true}
			}
		}
	}
	return nil
}

type fakeQuerier struct {
	row       fakeRow
	gotSQL    string
	gotAccess interface{}
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	q.gotSQL = sql
	if len(args) > 0 {
		q.gotAccess = args[0]
	}
	return q.row
}

func TestPostgresOrigin_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []interface{}{int64(3), "client-9", "ak-9", "pg-secret", "active", "10.1.1.1,10.1.1.2"}}}
		cred, err := NewPostgresOrigin(q).Fetch(ctx, "ak-9")
		require.NoError(t, err)

		assert.Contains(t, q.gotSQL, "FROM api_keys")
		assert.Equal(t, "ak-9", q.gotAccess)
		assert.Equal(t, StatusActive, cred.Status)
		assert.Equal(t, []string{"10.1.1.1", "10.1.1.2"}, cred.AllowedIPs)
		assert.Equal(t, "pg-secret", cred.Secret)
	})

	t.Run("null allowed ips", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []interface{}{int64(3), "c", "ak", "s", "REVOKED", nil}}}
		cred, err := NewPostgresOrigin(q).Fetch(ctx, "ak")
		require.NoError(t, err)
		assert.Nil(t, cred.AllowedIPs)
		assert.False(t, cred.IsActive())
	})

	t.Run("no rows", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
		_, err := NewPostgresOrigin(q).Fetch(ctx, "ak")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("query error", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{err: errors.New("connection reset")}}
		_, err := NewPostgresOrigin(q).Fetch(ctx, "ak")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeUnavailable))
	})

	t.Run("invalid status", func(t *testing.T) {
		q := &fakeQuerier{row: fakeRow{values: []interface{}{int64(3), "c", "ak", "s", "DELETED", nil}}}
		_, err := NewPostgresOrigin(q).Fetch(ctx, "ak")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInternal))
	})
}
