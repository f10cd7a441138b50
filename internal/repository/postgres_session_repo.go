package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/scriptgo/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, now: time.Now}
}

// Create はセッションを作成する。dataカラムは現状使わないため空オブジェクトを入れる。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	query, args, err := psql.Insert("sessions").
		Columns("id", "user_id", "data", "expires_at", "created_at").
		Values(session.ID, session.UserID, []byte("{}"), session.ExpiresAt, session.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build session insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	query, args, err := buildActiveSessionQuery(id, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to build session query: %w", err)
	}

	session := &model.Session{}
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

func buildActiveSessionQuery(id string, now time.Time) (string, []interface{}, error) {
	return psql.Select("id", "user_id", "expires_at", "created_at").
		From("sessions").
		Where(sq.Eq{"id": id}).
		Where(sq.Gt{"expires_at": now}).
		ToSql()
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.delete(ctx, sq.Eq{"id": id})
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.delete(ctx, sq.Eq{"user_id": userID})
}

func (r *PostgresSessionRepo) delete(ctx context.Context, where sq.Eq) error {
	query, args, err := psql.Delete("sessions").Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build session delete: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredBefore はcutoffより前に期限切れになったセッションを削除し、件数を返す。
func (r *PostgresSessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := buildPurgeSessionsQuery(cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to build session purge: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func buildPurgeSessionsQuery(cutoff time.Time) (string, []interface{}, error) {
	return psql.Delete("sessions").Where(sq.Lt{"expires_at": cutoff}).ToSql()
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
