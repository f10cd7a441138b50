// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/scriptgo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はメールアドレスと表示名を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、scriptsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository はGoogleアカウント紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ScriptRepository は保存済みスクリプトの永続化インターフェース。
// 単一行の操作はすべてuser_idでスコープし、他ユーザーの行には触れない。
type ScriptRepository interface {
	// Create はスクリプトを作成し、採番されたIDをscript.IDに設定する。
	Create(ctx context.Context, script *model.Script) error

	// Update はidとuser_idが一致する行を上書きする。
	// 更新対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, script *model.Script) (bool, error)

	// FindByID は指定ユーザーが所有するスクリプトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, id string) (*model.Script, error)

	// List はユーザーのスクリプトを作成日時の降順で返す。
	List(ctx context.Context, userID string, filter model.ScriptFilter) ([]*model.Script, error)

	// Delete は指定ユーザーが所有するスクリプトを削除する。
	// 削除対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, userID, id string) (bool, error)

	// CreateBatch は複数のスクリプトを1トランザクションで作成する。
	CreateBatch(ctx context.Context, scripts []*model.Script) error

	// ListDueForDelivery はscheduled_forがnow以前で未配信のスクリプトを
	// 失敗回数、scheduled_forの昇順で最大limit件取得する。
	// maxAttemptsが正の場合、失敗回数がmaxAttempts以上の行は含めない。
	ListDueForDelivery(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*model.Script, error)

	// MarkDelivered は配信済み日時を記録する。
	MarkDelivered(ctx context.Context, id string, at time.Time) error

	// RecordDeliveryFailure は配信失敗の回数と日時を記録する。
	RecordDeliveryFailure(ctx context.Context, id string, at time.Time) error

	// DeleteByUserID はユーザーの全スクリプトを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
