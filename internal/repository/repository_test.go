package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"companion-go/internal/model"
	"companion-go/pkg/database"

	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUser(t *testing.T, repo UserRepository, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, Password: "hash", Role: model.RoleUser}
	persona := model.DefaultPersona()
	if err := repo.CreateWithPersona(user, &persona); err != nil {
		t.Fatalf("CreateWithPersona: %v", err)
	}
	return user
}

func TestCreateWithPersonaIsAtomic(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	personas := NewPersonaRepository(db)

	u := createUser(t, users, "a@example.com")
	p, err := personas.FindByUserID(u.ID)
	if err != nil {
		t.Fatalf("FindByUserID: %v", err)
	}
	if p.Name != model.DefaultPersonaName {
		t.Fatalf("persona=%+v", p)
	}

	dup := &model.User{Email: "a@example.com", Password: "x"}
	persona := model.DefaultPersona()
	if err := users.CreateWithPersona(dup, &persona); err == nil {
		t.Fatal("expected duplicate email to fail")
	}
	var count int64
	db.Model(&model.Persona{}).Count(&count)
	if count != 1 {
		t.Fatalf("personas=%d, want 1 after rolled back insert", count)
	}
}

func TestPersonaUpdateKeepsMissingFields(t *testing.T) {
	db := openTestDB(t)
	u := createUser(t, NewUserRepository(db), "p@example.com")
	personas := NewPersonaRepository(db)

	name := "Sam"
	updated, err := personas.UpdateByUserID(u.ID, model.PersonaPatch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateByUserID: %v", err)
	}
	if updated.Name != "Sam" || updated.Relationship != model.DefaultPersonaRelationship {
		t.Fatalf("persona=%+v", updated)
	}
	reloaded, _ := personas.FindByUserID(u.ID)
	if reloaded.Name != "Sam" {
		t.Fatalf("reloaded=%+v", reloaded)
	}
}

func TestAppendOrdersAndClampsTimestamps(t *testing.T) {
	db := openTestDB(t)
	u := createUser(t, NewUserRepository(db), "c@example.com")
	repo := NewChatMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*model.ChatMessage{
		{UserID: u.ID, Sender: model.SenderUser, Message: "one", Timestamp: base},
		{UserID: u.ID, Sender: model.SenderAI, Message: "two", Timestamp: base.Add(-time.Minute)},
		{UserID: u.ID, Sender: model.SenderUser, Message: "three", Timestamp: base.Add(time.Second)},
	}
	for _, m := range msgs {
		if err := repo.Append(ctx, m); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if !msgs[1].Timestamp.Equal(base) {
		t.Fatalf("timestamp not clamped: %v", msgs[1].Timestamp)
	}

	got, err := repo.ListByUser(ctx, u.ID, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 3 || got[0].Message != "one" || got[1].Message != "two" || got[2].Message != "three" {
		t.Fatalf("order=%+v", got)
	}

	last2, _ := repo.ListByUser(ctx, u.ID, 2)
	if len(last2) != 2 || last2[0].Message != "two" || last2[1].Message != "three" {
		t.Fatalf("last2=%+v", last2)
	}
}

func TestAppendUnknownUserFails(t *testing.T) {
	repo := NewChatMessageRepository(openTestDB(t))
	err := repo.Append(context.Background(), &model.ChatMessage{UserID: 99, Sender: model.SenderUser, Message: "x"})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func TestAppendConcurrentKeepsAllMessages(t *testing.T) {
	db := openTestDB(t)
	u := createUser(t, NewUserRepository(db), "d@example.com")
	repo := NewChatMessageRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := repo.Append(ctx, &model.ChatMessage{UserID: u.ID, Sender: model.SenderUser, Message: fmt.Sprintf("m%d", i)}); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	n, err := repo.CountByUser(ctx, u.ID)
	if err != nil || n != 10 {
		t.Fatalf("count=%d err=%v", n, err)
	}
	got, _ := repo.ListByUser(ctx, u.ID, 0)
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("timestamps decrease at %d", i)
		}
	}
}

func TestDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	u := createUser(t, users, "e@example.com")
	other := createUser(t, users, "f@example.com")
	msgs := NewChatMessageRepository(db)
	ctx := context.Background()
	_ = msgs.Append(ctx, &model.ChatMessage{UserID: u.ID, Sender: model.SenderUser, Message: "hi"})
	_ = msgs.Append(ctx, &model.ChatMessage{UserID: other.ID, Sender: model.SenderUser, Message: "hi"})

	if err := users.Delete(u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := users.FindByID(u.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("user still present: %v", err)
	}
	if _, err := NewPersonaRepository(db).FindByUserID(u.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("persona still present: %v", err)
	}
	if n, _ := msgs.CountByUser(ctx, u.ID); n != 0 {
		t.Fatalf("messages left=%d", n)
	}
	if n, _ := msgs.CountByUser(ctx, other.ID); n != 1 {
		t.Fatalf("other user's messages=%d", n)
	}
	if err := users.Delete(u.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete err=%v", err)
	}
}

func TestFindWithPagination(t *testing.T) {
	db := openTestDB(t)
	users := NewUserRepository(db)
	for i := 0; i < 5; i++ {
		createUser(t, users, fmt.Sprintf("u%d@example.com", i))
	}
	page, total, err := users.FindWithPagination(2, 2)
	if err != nil {
		t.Fatalf("FindWithPagination: %v", err)
	}
	if total != 5 || len(page) != 2 || page[0].Email != "u2@example.com" {
		t.Fatalf("total=%d page=%+v", total, page)
	}
}
