package user

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/scriptgo/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type mockScriptDeleter struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockScriptDeleter) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

// --- テスト ---

// TestService_Withdraw は退会処理が全関連データを決められた順に削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var calls []string

	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "test@example.com"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			calls = append(calls, "user")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			calls = append(calls, "sessions")
			return nil
		},
	}
	scriptDeleter := &mockScriptDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			if userID != "user-1" {
				t.Errorf("userID = %s, want user-1", userID)
			}
			calls = append(calls, "scripts")
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, scriptDeleter)

	err := svc.Withdraw(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"scripts", "sessions", "user"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("削除順序 = %v, want %v", calls, want)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}

	svc := NewService(userRepo, nil, nil)

	err := svc.Withdraw(context.Background(), "nonexistent-user")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("USER_NOT_FOUNDを期待したが %v", err)
	}
}

// TestService_Withdraw_ScriptDeleteFailure はスクリプト削除失敗時にユーザーを削除しないことを検証する。
func TestService_Withdraw_ScriptDeleteFailure(t *testing.T) {
	userDeleted := false
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			userDeleted = true
			return nil
		},
	}
	scriptDeleter := &mockScriptDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	svc := NewService(userRepo, nil, scriptDeleter)

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("スクリプト削除失敗時はエラーを返すべき")
	}
	if userDeleted {
		t.Error("スクリプト削除に失敗した場合はユーザーを削除してはならない")
	}
}

// TestService_Withdraw_SessionDeleteFailure はセッション削除失敗がエラーとして伝わることを検証する。
func TestService_Withdraw_SessionDeleteFailure(t *testing.T) {
	dbErr := errors.New("timeout")
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("セッション削除に失敗した場合はユーザーを削除してはならない")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return dbErr
		},
	}

	err := NewService(userRepo, sessionRepo, nil).Withdraw(context.Background(), "user-1")
	if !errors.Is(err, dbErr) {
		t.Fatalf("err = %v, want wrapped %v", err, dbErr)
	}
}
