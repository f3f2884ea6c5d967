package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"companion-go/internal/model"
	"companion-go/internal/repository"
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

func seedUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Password: "x", Role: model.RoleUser}
	p := model.DefaultPersona()
	if err := repository.NewUserRepository(db).CreateWithPersona(u, &p); err != nil {
		t.Fatalf("CreateWithPersona: %v", err)
	}
	return u
}

// memTokens 是 TokenRepository 的内存实现。
type memTokens struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemTokens() *memTokens {
	return &memTokens{revoked: map[string]time.Duration{}}
}

func (m *memTokens) Revoke(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[token] = ttl
	return nil
}

func (m *memTokens) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[token]
	return ok, nil
}

// memExports 是 ExportStatusRepository 的内存实现。
type memExports struct {
	mu       sync.Mutex
	statuses map[string]model.ExportStatus
}

func newMemExports() *memExports {
	return &memExports{statuses: map[string]model.ExportStatus{}}
}

func (m *memExports) Set(_ context.Context, s model.ExportStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.TaskID] = s
	return nil
}

func (m *memExports) Get(_ context.Context, id string) (*model.ExportStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[id]
	if !ok {
		return nil, repository.ErrExportNotFound
	}
	return &s, nil
}
