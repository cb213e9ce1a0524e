package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/coachwatch/internal/config"
	"github.com/your-org/coachwatch/internal/identity"
	"github.com/your-org/coachwatch/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema creates the tables on first start. dim fixes the width of the
// embedding column.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS identities (
			seq              BIGSERIAL,
			id               TEXT PRIMARY KEY,
			display_name     TEXT NOT NULL DEFAULT '',
			authorized       BOOLEAN NOT NULL DEFAULT FALSE,
			role             TEXT NOT NULL,
			ticket_reference TEXT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS identity_embeddings (
			seq         BIGSERIAL PRIMARY KEY,
			identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			embedding   vector(%d) NOT NULL,
			source_key  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE TABLE IF NOT EXISTS security_logs (
			id          UUID PRIMARY KEY,
			type        TEXT NOT NULL,
			description TEXT NOT NULL,
			location    TEXT NOT NULL,
			identity_id TEXT,
			alert_id    UUID UNIQUE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS security_logs_location_idx ON security_logs (location, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id         UUID PRIMARY KEY,
			type       TEXT NOT NULL,
			message    TEXT NOT NULL,
			data       JSONB NOT NULL DEFAULT '{}',
			is_read    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- Enrollments ---

// SaveEnrollment persists one embedding. The identity row is created on first
// enrollment and left untouched afterwards.
func (s *PostgresStore) SaveEnrollment(ctx context.Context, id identity.Identity, embedding []float32, sourceKey string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var ticket *string
	if id.TicketReference != "" {
		ticket = &id.TicketReference
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO identities (id, display_name, authorized, role, ticket_reference)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		id.ID, id.DisplayName, id.Authorized, string(id.Role), ticket)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO identity_embeddings (identity_id, embedding, source_key) VALUES ($1, $2, $3)`,
		id.ID, pgvector.NewVector(embedding), sourceKey)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteIdentity removes the identity and all its embeddings.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LoadEnrollments returns every stored embedding in enrollment order.
func (s *PostgresStore) LoadEnrollments(ctx context.Context) ([]identity.Sample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT i.id, i.display_name, i.authorized, i.role, i.ticket_reference, e.embedding
		 FROM identity_embeddings e
		 JOIN identities i ON i.id = e.identity_id
		 ORDER BY i.seq, e.seq`)
	if err != nil {
		return nil, fmt.Errorf("load enrollments: %w", err)
	}
	defer rows.Close()

	var samples []identity.Sample
	for rows.Next() {
		var (
			smp    identity.Sample
			role   string
			ticket *string
			vec    pgvector.Vector
		)
		if err := rows.Scan(&smp.Identity.ID, &smp.Identity.DisplayName, &smp.Identity.Authorized, &role, &ticket, &vec); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		smp.Identity.Role = identity.Role(role)
		if ticket != nil {
			smp.Identity.TicketReference = *ticket
		}
		smp.Vector = vec.Slice()
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// --- Security log ---

// CreateSecurityLog stores an entry and reports whether it was new. Entries
// carrying an alert id already stored are ignored, so redelivered alerts are
// logged once.
func (s *PostgresStore) CreateSecurityLog(ctx context.Context, l *models.SecurityLog) (bool, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO security_logs (id, type, description, location, identity_id, alert_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (alert_id) DO NOTHING`,
		l.ID, string(l.Type), l.Description, l.Location, l.IdentityID, l.AlertID, l.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create security log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListSecurityLogs returns the newest entries, optionally for one zone.
func (s *PostgresStore) ListSecurityLogs(ctx context.Context, location string, limit int) ([]models.SecurityLog, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT id, type, description, location, identity_id, alert_id, created_at FROM security_logs`
	args := []interface{}{}
	if location != "" {
		query += ` WHERE location = $1`
		args = append(args, location)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list security logs: %w", err)
	}
	defer rows.Close()

	logs := []models.SecurityLog{}
	for rows.Next() {
		var (
			l   models.SecurityLog
			typ string
		)
		if err := rows.Scan(&l.ID, &typ, &l.Description, &l.Location, &l.IdentityID, &l.AlertID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan security log: %w", err)
		}
		l.Type = models.SecurityLogType(typ)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- Notifications ---

func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.Data == nil {
		n.Data = json.RawMessage("{}")
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (id, type, message, data) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		n.ID, string(n.Type), n.Message, n.Data,
	).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}
