package credential

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	apperrors "hmac-gateway/internal/common/errors"
)

const selectByAccessKey = `
SELECT id, client_id, access_key, secret, status, allowed_ips
FROM api_keys
WHERE access_key = $1 AND deleted_at IS NULL`

// rowQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresOrigin reads credentials straight from the api_keys table.
type PostgresOrigin struct {
	db       rowQuerier
	validate *validator.Validate
}

// NewPostgresOrigin creates an origin over a pgx pool or connection.
func NewPostgresOrigin(db rowQuerier) *PostgresOrigin {
	return &PostgresOrigin{db: db, validate: validator.New()}
}

// Fetch looks up a non-deleted credential by access key.
func (o *PostgresOrigin) Fetch(ctx context.Context, accessKey string) (*Credential, error) {
	var (
		cred       Credential
		status     string
		allowedIPs sql.NullString
	)

	err := o.db.QueryRow(ctx, selectByAccessKey, accessKey).Scan(
		&cred.ID, &cred.ClientID, &cred.AccessKey, &cred.Secret, &status, &allowedIPs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.UnavailableError("credential database query failed", err)
	}

	cred.Status = Status(strings.ToUpper(status))
	if allowedIPs.Valid {
		cred.AllowedIPs = ParseAllowedIPs(allowedIPs.String)
	}

	if err := o.validate.Struct(&cred); err != nil {
		return nil, apperrors.InternalError("stored credential is invalid", err).
			WithContext("access_key", accessKey)
	}
	return &cred, nil
}
