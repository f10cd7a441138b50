package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/scriptgo/internal/model"
)

// userColumns はSELECT時のカラム順。scanUserと対応させること。
var userColumns = []string{"id", "email", "name", "created_at", "updated_at"}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	query, args, err := psql.Select(userColumns...).
		From("users").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build user query: %w", err)
	}

	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := buildInsertUserQuery(user)
	if err != nil {
		return fmt.Errorf("failed to build user insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if err := insertIdentity(ctx, tx, identity); err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func buildInsertUserQuery(user *model.User) (string, []interface{}, error) {
	return psql.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt).
		ToSql()
}

// UpdateProfile はGoogle側で変わったメールアドレスと表示名を反映する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	query, args, err := buildUpdateProfileQuery(user)
	if err != nil {
		return fmt.Errorf("failed to build profile update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

func buildUpdateProfileQuery(user *model.User) (string, []interface{}, error) {
	return psql.Update("users").
		Set("email", user.Email).
		Set("name", user.Name).
		Set("updated_at", user.UpdatedAt).
		Where(sq.Eq{"id": user.ID}).
		ToSql()
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、sessions、scriptsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	query, args, err := psql.Delete("users").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build user delete: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

var _ UserRepository = (*PostgresUserRepo)(nil)
