package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/leadgrid/leadgrid-api/internal/models"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	user := &models.User{
		ID:           ulid.Make().String(),
		Email:        "member@example.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repos.User.Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repos.User.GetByEmail(ctx, "member@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("GetByEmail() = %v, want user %s", got, user.ID)
	}

	missing, err := repos.User.GetByEmail(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserRepository_UpdatePassword(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()

	InsertTestUser(t, db, "user_1", "member@example.com", "old-hash")

	if err := repo.UpdatePassword(ctx, "user_1", "new-hash", time.Now()); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %s, want new-hash", got.PasswordHash)
	}

	if err := repo.UpdatePassword(ctx, "no-such-user", "x", time.Now()); err == nil {
		t.Error("UpdatePassword() on unknown user should error")
	}
}

func TestUserRepository_PasswordResetLifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()

	InsertTestUser(t, db, "user_1", "member@example.com", "hash")

	now := time.Now().UTC().Truncate(time.Second)
	pr := &models.PasswordReset{
		ID:        ulid.Make().String(),
		UserID:    "user_1",
		TokenHash: "sha256-of-token",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	if err := repo.CreatePasswordReset(ctx, pr); err != nil {
		t.Fatalf("CreatePasswordReset() error = %v", err)
	}

	got, err := repo.GetPasswordResetByTokenHash(ctx, "sha256-of-token")
	if err != nil {
		t.Fatalf("GetPasswordResetByTokenHash() error = %v", err)
	}
	if got == nil || got.ID != pr.ID {
		t.Fatalf("GetPasswordResetByTokenHash() = %v, want reset %s", got, pr.ID)
	}
	if got.UsedAt != nil {
		t.Error("fresh token should not be used")
	}

	consumed, err := repo.MarkPasswordResetUsed(ctx, pr.ID, now)
	if err != nil {
		t.Fatalf("MarkPasswordResetUsed() error = %v", err)
	}
	if !consumed {
		t.Fatal("first MarkPasswordResetUsed() should consume the token")
	}

	// Replaying the same link must not consume it again.
	consumed, err = repo.MarkPasswordResetUsed(ctx, pr.ID, now)
	if err != nil {
		t.Fatalf("second MarkPasswordResetUsed() error = %v", err)
	}
	if consumed {
		t.Error("second MarkPasswordResetUsed() must report false")
	}
}

func TestUserRepository_DeleteExpiredPasswordResets(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()

	InsertTestUser(t, db, "user_1", "member@example.com", "hash")

	now := time.Now().UTC().Truncate(time.Second)
	stale := &models.PasswordReset{
		ID:        ulid.Make().String(),
		UserID:    "user_1",
		TokenHash: "stale",
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	live := &models.PasswordReset{
		ID:        ulid.Make().String(),
		UserID:    "user_1",
		TokenHash: "live",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	for _, pr := range []*models.PasswordReset{stale, live} {
		if err := repo.CreatePasswordReset(ctx, pr); err != nil {
			t.Fatalf("CreatePasswordReset() error = %v", err)
		}
	}

	deleted, err := repo.DeleteExpiredPasswordResets(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpiredPasswordResets() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteExpiredPasswordResets() = %d, want 1", deleted)
	}

	got, err := repo.GetPasswordResetByTokenHash(ctx, "live")
	if err != nil {
		t.Fatalf("GetPasswordResetByTokenHash() error = %v", err)
	}
	if got == nil {
		t.Error("live token should survive the sweep")
	}
}
