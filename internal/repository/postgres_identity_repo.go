package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/scriptgo/internal/model"
)

var identityColumns = []string{"id", "user_id", "provider", "provider_user_id", "created_at"}

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	query, args, err := psql.Select(identityColumns...).
		From("identities").
		Where(sq.Eq{"provider": provider, "provider_user_id": providerUserID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build identity query: %w", err)
	}

	identity := &model.Identity{}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&identity.ID, &identity.UserID, &identity.Provider, &identity.ProviderUserID, &identity.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return identity, nil
}

// insertIdentity はユーザー作成と同じトランザクション内でidentityを挿入する。
func insertIdentity(ctx context.Context, q queryer, identity *model.Identity) error {
	query, args, err := psql.Insert("identities").
		Columns(identityColumns...).
		Values(identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
