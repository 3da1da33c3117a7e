package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/podiumlab/podium/backend/internal/access"
	"github.com/podiumlab/podium/backend/internal/auth"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingVerifier = errors.New("credential verifier is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew     = "identity.service.new"
	opAuthenticate   = "identity.authenticate"
	opResolveRole    = "identity.resolve_role"
	fieldEmail       = "email"
	fieldUserID      = "user_id"
	fieldCompetition = "competition_id"
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the structured error code.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// CredentialVerifier validates a bearer credential against the external
// identity provider.
type CredentialVerifier interface {
	Verify(ctx context.Context, rawToken string) (auth.Principal, error)
}

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Verifier CredentialVerifier
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves connection credentials into identities and roles.
type Service struct {
	db       *gorm.DB
	verifier CredentialVerifier
	clock    func() time.Time
	logger   *zap.Logger
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Verifier == nil {
		return nil, newServiceError(opServiceNew, "missing_verifier", errMissingVerifier)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:       cfg.Database,
		verifier: cfg.Verifier,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Authenticate resolves the credential into an identity and a role for the
// target competition. Every verification failure, including an absent or
// unverifiable credential, degrades to (nil, RoleNone); the connection is
// still admitted as an observer.
func (s *Service) Authenticate(ctx context.Context, rawToken string, competitionID string) (*Identity, access.Role) {
	if rawToken == "" {
		return nil, access.RoleNone
	}

	principal, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		s.logger.Debug("credential verification failed", zap.Error(err))
		return nil, access.RoleNone
	}
	if !principal.EmailVerified || normalizeEmail(principal.Email) == "" {
		s.logger.Debug("credential lacks a verified email",
			zap.String("subject", principal.Subject))
		return nil, access.RoleNone
	}

	ident, err := s.resolveIdentity(ctx, principal)
	if err != nil {
		s.logger.Warn("identity resolution failed",
			zap.String(fieldEmail, normalizeEmail(principal.Email)),
			zap.Error(err))
		return nil, access.RoleNone
	}

	role, err := s.ResolveRole(ctx, ident, competitionID)
	if err != nil {
		s.logger.Warn("role resolution failed",
			zap.String(fieldUserID, ident.UserID),
			zap.String(fieldCompetition, competitionID),
			zap.Error(err))
		return ident, access.RoleNone
	}

	return ident, role
}

// resolveIdentity returns the identity for a verified email, creating it on
// first sight. The insert uses ON CONFLICT DO NOTHING against the unique
// email column, so concurrent first logins cannot race into duplicate rows;
// whichever insert loses the conflict re-reads the winner.
func (s *Service) resolveIdentity(ctx context.Context, principal auth.Principal) (*Identity, error) {
	email := normalizeEmail(principal.Email)

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, newServiceError(opAuthenticate, "id_generation_failed", err)
	}

	candidate := Identity{
		UserID:      userID.String(),
		Email:       email,
		DisplayName: principal.Subject,
		LastSeenAt:  s.clock().UTC(),
	}
	insert := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_email"}},
			DoNothing: true,
		}).
		Create(&candidate)
	if insert.Error != nil {
		return nil, newServiceError(opAuthenticate, "identity_insert_failed", insert.Error)
	}

	var ident Identity
	if err := s.db.WithContext(ctx).
		Where("user_email = ?", email).
		Take(&ident).Error; err != nil {
		return nil, newServiceError(opAuthenticate, "identity_lookup_failed", err)
	}

	if insert.RowsAffected == 0 {
		// Repeat login: refresh last seen, best effort.
		_ = s.db.WithContext(ctx).Model(&Identity{}).
			Where("user_email = ?", email).
			Update("last_seen_at", s.clock().UTC()).Error
	}

	return &ident, nil
}

// ResolveRole derives the role for an identity on a competition.
// Administrative identities are owners everywhere; otherwise the explicit
// membership row decides, and its absence means no role.
func (s *Service) ResolveRole(ctx context.Context, ident *Identity, competitionID string) (access.Role, error) {
	if ident == nil {
		return access.RoleNone, nil
	}
	if ident.Admin {
		return access.RoleOwner, nil
	}

	var membership Membership
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND competition_id = ?", ident.UserID, competitionID).
		Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.RoleNone, nil
	}
	if err != nil {
		return access.RoleNone, newServiceError(opResolveRole, "membership_lookup_failed", err)
	}

	role, err := access.ParseRole(membership.Role)
	if err != nil {
		return access.RoleNone, newServiceError(opResolveRole, "membership_role_invalid", err)
	}
	return role, nil
}
