package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/scriptgo/internal/model"
)

// scriptColumns はSELECT時のカラム順。scanScriptと対応させること。
var scriptColumns = []string{
	"id", "user_id", "title", "platform", "content", "label",
	"scheduled_for", "delivered_at", "delivery_attempts", "created_at", "updated_at",
}

// psql はPostgreSQL用プレースホルダ（$1, $2...）を使うクエリビルダ。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// maxListLimit は一覧取得1回あたりの上限件数。
const maxListLimit = 200

// PostgresScriptRepo はPostgreSQLを使用したスクリプトリポジトリ。
type PostgresScriptRepo struct {
	db *sql.DB
}

// NewPostgresScriptRepo はPostgresScriptRepoを生成する。
func NewPostgresScriptRepo(db *sql.DB) *PostgresScriptRepo {
	return &PostgresScriptRepo{db: db}
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Create はスクリプトを作成する。IDは採番してscript.IDに設定する。
func (r *PostgresScriptRepo) Create(ctx context.Context, script *model.Script) error {
	if err := insertScript(ctx, r.db, script); err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}
	return nil
}

func insertScript(ctx context.Context, q queryer, script *model.Script) error {
	query, args, err := buildInsertQuery(script)
	if err != nil {
		return err
	}
	return q.QueryRowContext(ctx, query, args...).Scan(&script.ID, &script.CreatedAt, &script.UpdatedAt)
}

func buildInsertQuery(script *model.Script) (string, []interface{}, error) {
	content, err := json.Marshal(script.Content)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode script content: %w", err)
	}
	return psql.Insert("scripts").
		Columns("user_id", "title", "platform", "content", "label", "scheduled_for").
		Values(script.UserID, script.Title, string(script.Platform), string(content), script.Label, script.ScheduledFor).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
}

// Update はidとuser_idが一致する行のタイトル・本文・ラベル等を上書きする。
// 同時更新は後勝ちで、バージョン管理は行わない。
func (r *PostgresScriptRepo) Update(ctx context.Context, script *model.Script) (bool, error) {
	content, err := json.Marshal(script.Content)
	if err != nil {
		return false, fmt.Errorf("failed to encode script content: %w", err)
	}

	query, args, err := buildUpdateQuery(script, content)
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	var scheduledFor, deliveredAt sql.NullTime
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&script.CreatedAt, &script.UpdatedAt, &scheduledFor, &deliveredAt, &script.DeliveryAttempts,
	)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update script: %w", err)
	}
	script.ScheduledFor = nullTimePtr(scheduledFor)
	script.DeliveredAt = nullTimePtr(deliveredAt)
	return true, nil
}

// buildUpdateQuery は上書き対象外の列（予約日時・配信状態）もRETURNINGで返し、
// 呼び出し側のscriptを保存後の行と一致させる。
func buildUpdateQuery(script *model.Script, content []byte) (string, []interface{}, error) {
	return psql.Update("scripts").
		Set("title", script.Title).
		Set("platform", string(script.Platform)).
		Set("content", string(content)).
		Set("label", script.Label).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": script.ID, "user_id": script.UserID}).
		Suffix("RETURNING created_at, updated_at, scheduled_for, delivered_at, delivery_attempts").
		ToSql()
}

// FindByID は指定ユーザーが所有するスクリプトを取得する。見つからない場合はnilを返す。
func (r *PostgresScriptRepo) FindByID(ctx context.Context, userID, id string) (*model.Script, error) {
	query, args, err := psql.Select(scriptColumns...).
		From("scripts").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build find query: %w", err)
	}

	script, err := scanScript(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find script: %w", err)
	}
	return script, nil
}

// List はユーザーのスクリプトを作成日時の降順で返す。
func (r *PostgresScriptRepo) List(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error) {
	query, args, err := buildListQuery(userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	return r.queryScripts(ctx, query, args...)
}

// buildListQuery は絞り込み条件からSELECT文を組み立てる。
func buildListQuery(userID string, filter model.ScriptFilter) (string, []interface{}, error) {
	b := psql.Select(scriptColumns...).
		From("scripts").
		Where(sq.Eq{"user_id": userID})

	if filter.Platform != "" {
		b = b.Where(sq.Eq{"platform": string(filter.Platform)})
	}
	if filter.Label != "" {
		b = b.Where(sq.Eq{"label": filter.Label})
	}

	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	return b.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
}

// Delete は指定ユーザーが所有するスクリプトを削除する。
func (r *PostgresScriptRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	query, args, err := psql.Delete("scripts").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build delete query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete script: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// CreateBatch は複数のスクリプトを1トランザクションで作成する。
// 1件でも失敗した場合は全件ロールバックする。
func (r *PostgresScriptRepo) CreateBatch(ctx context.Context, scripts []*model.Script) error {
	if len(scripts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, script := range scripts {
		if err := insertScript(ctx, tx, script); err != nil {
			return fmt.Errorf("failed to insert script %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListDueForDelivery は配信予定日時を過ぎた未配信スクリプトを取得する。
// 失敗回数がmaxAttemptsに達した行は除外し、失敗回数の少ない行を優先する。
func (r *PostgresScriptRepo) ListDueForDelivery(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*model.Script, error) {
	query, args, err := buildDueQuery(now, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build due query: %w", err)
	}
	return r.queryScripts(ctx, query, args...)
}

func buildDueQuery(now time.Time, maxAttempts, limit int) (string, []interface{}, error) {
	b := psql.Select(scriptColumns...).
		From("scripts").
		Where(sq.LtOrEq{"scheduled_for": now}).
		Where(sq.Eq{"delivered_at": nil})
	if maxAttempts > 0 {
		b = b.Where(sq.Lt{"delivery_attempts": maxAttempts})
	}
	b = b.OrderBy("delivery_attempts ASC", "scheduled_for ASC", "id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b.ToSql()
}

// RecordDeliveryFailure は配信失敗を記録し、失敗回数を1つ進める。
// 配信済みの行は変更しない。
func (r *PostgresScriptRepo) RecordDeliveryFailure(ctx context.Context, id string, at time.Time) error {
	query, args, err := buildDeliveryFailureQuery(id, at)
	if err != nil {
		return fmt.Errorf("failed to build delivery failure query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}
	return nil
}

func buildDeliveryFailureQuery(id string, at time.Time) (string, []interface{}, error) {
	return psql.Update("scripts").
		Set("delivery_attempts", sq.Expr("delivery_attempts + 1")).
		Set("last_delivery_attempt_at", at).
		Where(sq.Eq{"id": id, "delivered_at": nil}).
		ToSql()
}

// MarkDelivered は配信済み日時を記録する。
func (r *PostgresScriptRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query, args, err := psql.Update("scripts").
		Set("delivered_at", at).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build mark delivered query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark script delivered: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの全スクリプトを削除する。
func (r *PostgresScriptRepo) DeleteByUserID(ctx context.Context, userID string) error {
	query, args, err := psql.Delete("scripts").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete user scripts: %w", err)
	}
	return nil
}

func (r *PostgresScriptRepo) queryScripts(ctx context.Context, query string, args ...interface{}) ([]*model.Script, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scripts: %w", err)
	}
	defer rows.Close()

	scripts := make([]*model.Script, 0)
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, script)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scripts: %w", err)
	}
	return scripts, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScript(row rowScanner) (*model.Script, error) {
	script := &model.Script{}
	var platform string
	var content []byte
	var scheduledFor, deliveredAt sql.NullTime

	if err := row.Scan(
		&script.ID, &script.UserID, &script.Title, &platform, &content, &script.Label,
		&scheduledFor, &deliveredAt, &script.DeliveryAttempts, &script.CreatedAt, &script.UpdatedAt,
	); err != nil {
		return nil, err
	}

	script.Platform = model.Platform(platform)
	if len(content) > 0 {
		if err := json.Unmarshal(content, &script.Content); err != nil {
			return nil, fmt.Errorf("failed to decode script content: %w", err)
		}
	}
	script.ScheduledFor = nullTimePtr(scheduledFor)
	script.DeliveredAt = nullTimePtr(deliveredAt)
	return script, nil
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// compile-time interface check
var _ ScriptRepository = (*PostgresScriptRepo)(nil)
