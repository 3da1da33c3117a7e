package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/podiumlab/podium/backend/internal/access"
	"github.com/podiumlab/podium/backend/internal/auth"
)

type stubVerifier struct {
	principal auth.Principal
	err       error
}

func (s stubVerifier) Verify(_ context.Context, _ string) (auth.Principal, error) {
	if s.err != nil {
		return auth.Principal{}, s.err
	}
	return s.principal, nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Identity{}, &Membership{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, verifier CredentialVerifier) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{Database: db, Verifier: verifier})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestAuthenticateCreatesIdentityOnceForRepeatLogins(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{principal: auth.Principal{
		Subject:       "subject-1",
		Email:         "Player@Example.com",
		EmailVerified: true,
	}})

	first, role := service.Authenticate(context.Background(), "token", "comp-1")
	if first == nil {
		t.Fatalf("expected identity for verified credential")
	}
	if role != access.RoleNone {
		t.Fatalf("expected no role without membership, got %q", role)
	}
	if first.Email != "player@example.com" {
		t.Fatalf("expected normalized email, got %q", first.Email)
	}

	second, _ := service.Authenticate(context.Background(), "token", "comp-1")
	if second == nil {
		t.Fatalf("expected identity on repeat login")
	}
	if second.UserID != first.UserID {
		t.Fatalf("expected repeat login to reuse identity %s, got %s", first.UserID, second.UserID)
	}

	var count int64
	if err := db.Model(&Identity{}).Where("user_email = ?", "player@example.com").Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one identity row, got %d", count)
	}
}

func TestAuthenticateConcurrentFirstLoginsCreateSingleIdentity(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{principal: auth.Principal{
		Subject:       "subject-2",
		Email:         "racer@example.com",
		EmailVerified: true,
	}})

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident, _ := service.Authenticate(context.Background(), "token", "comp-1")
			if ident == nil {
				t.Errorf("expected identity from concurrent login")
			}
		}()
	}
	wg.Wait()

	var count int64
	if err := db.Model(&Identity{}).Where("user_email = ?", "racer@example.com").Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one identity row under concurrency, got %d", count)
	}
}

func TestAuthenticateDegradesOnVerifierFailure(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{err: errors.New("provider unreachable")})

	ident, role := service.Authenticate(context.Background(), "token", "comp-1")
	if ident != nil {
		t.Fatalf("expected no identity on verifier failure")
	}
	if role != access.RoleNone {
		t.Fatalf("expected read-only degrade, got role %q", role)
	}
}

func TestAuthenticateRejectsUnverifiedEmail(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{principal: auth.Principal{
		Subject:       "subject-3",
		Email:         "pending@example.com",
		EmailVerified: false,
	}})

	ident, role := service.Authenticate(context.Background(), "token", "comp-1")
	if ident != nil || role != access.RoleNone {
		t.Fatalf("expected unverified email to resolve to no identity")
	}

	var count int64
	if err := db.Model(&Identity{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count identities: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no identity rows, got %d", count)
	}
}

func TestAuthenticateWithoutCredentialIsReadOnly(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{err: errors.New("must not be called")})

	ident, role := service.Authenticate(context.Background(), "", "comp-1")
	if ident != nil || role != access.RoleNone {
		t.Fatalf("expected absent credential to resolve to no identity")
	}
}

func TestAdminIdentityIsOwnerOnEveryCompetition(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{principal: auth.Principal{
		Subject:       "subject-4",
		Email:         "director@example.com",
		EmailVerified: true,
	}})

	ident, _ := service.Authenticate(context.Background(), "token", "comp-1")
	if ident == nil {
		t.Fatalf("expected identity")
	}
	if err := db.Model(&Identity{}).Where("user_id = ?", ident.UserID).Update("is_admin", true).Error; err != nil {
		t.Fatalf("failed to flag identity as admin: %v", err)
	}

	for _, competitionID := range []string{"comp-1", "comp-2", "never-seen"} {
		_, role := service.Authenticate(context.Background(), "token", competitionID)
		if role != access.RoleOwner {
			t.Fatalf("expected owner role on %s for admin identity, got %q", competitionID, role)
		}
	}
}

func TestMembershipRoleResolution(t *testing.T) {
	db := openTestDatabase(t)
	service := newTestService(t, db, stubVerifier{principal: auth.Principal{
		Subject:       "subject-5",
		Email:         "coach@example.com",
		EmailVerified: true,
	}})

	ident, _ := service.Authenticate(context.Background(), "token", "comp-1")
	if ident == nil {
		t.Fatalf("expected identity")
	}
	membership := Membership{UserID: ident.UserID, CompetitionID: "comp-1", Role: "editor"}
	if err := db.Create(&membership).Error; err != nil {
		t.Fatalf("failed to create membership: %v", err)
	}

	_, role := service.Authenticate(context.Background(), "token", "comp-1")
	if role != access.RoleEditor {
		t.Fatalf("expected editor role from membership, got %q", role)
	}

	_, role = service.Authenticate(context.Background(), "token", "comp-2")
	if role != access.RoleNone {
		t.Fatalf("expected no role on competition without membership, got %q", role)
	}
}
