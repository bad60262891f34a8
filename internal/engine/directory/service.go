package directory

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"quotr/internal/engine/access"
	"quotr/internal/pkg/errors"
	"quotr/internal/pkg/validator"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/auth"
	"quotr/internal/platform/database"
	"quotr/internal/platform/models"
	"quotr/internal/platform/repositories"
)

// SessionRevoker ends a user's sessions after a credential or role change.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

type Service struct {
	orgs     *repositories.OrganisationRepository
	users    *repositories.UserRepository
	guard    *access.Guard
	audit    *audit.Logger
	sessions SessionRevoker
}

func NewService(orgs *repositories.OrganisationRepository, users *repositories.UserRepository, guard *access.Guard, auditLog *audit.Logger, sessions SessionRevoker) *Service {
	return &Service{orgs: orgs, users: users, guard: guard, audit: auditLog, sessions: sessions}
}

type CreateUserInput struct {
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	Role             models.Role `json:"role"`
	OrganisationName string      `json:"organisation_name"`
}

type UpdateUserInput struct {
	Username         *string      `json:"username"`
	Role             *models.Role `json:"role"`
	OrganisationName *string      `json:"organisation_name"`
}

func (s *Service) Roles() map[string]int {
	return models.RoleTable()
}

// ResolveCaller loads the current role and organisation of a user.
func (s *Service) ResolveCaller(ctx context.Context, userID string) (access.Caller, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return access.Caller{}, fmt.Errorf("resolve caller: %w", err)
	}
	if user == nil {
		return access.Caller{}, errors.Wrap(errors.ErrUnauthenticated, "user no longer exists")
	}
	return access.Caller{
		UserID:         user.ID,
		Username:       user.Username,
		Role:           user.Role,
		OrganisationID: user.OrganisationID,
	}, nil
}

// Authenticate checks a username and password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "invalid username or password")
	}
	return user, nil
}

// LoadUser reads a user without an access check, for session refresh.
func (s *Service) LoadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, errors.Wrap(errors.ErrUnauthenticated, "user no longer exists")
	}
	return user, nil
}

func (s *Service) Self(ctx context.Context, caller access.Caller) (*models.User, error) {
	if err := s.guard.Require(caller, access.ActionReadSelf, access.Resource{}); err != nil {
		return nil, err
	}
	return s.LoadUser(ctx, caller.UserID)
}

func (s *Service) GetUser(ctx context.Context, caller access.Caller, id string) (*models.User, error) {
	if err := s.guard.Require(caller, access.ActionReadUser, access.Resource{}); err != nil {
		return nil, err
	}

	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireRead(caller, user.ID, user.Role); err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns the users ranked below the caller.
func (s *Service) ListUsers(ctx context.Context, caller access.Caller) ([]*models.User, error) {
	if err := s.guard.Require(caller, access.ActionListUsers, access.Resource{}); err != nil {
		return nil, err
	}
	users, err := s.users.ListBelow(ctx, caller.Role)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, caller access.Caller, in CreateUserInput) (*models.User, error) {
	if !in.Role.Valid() || in.Role == models.RolePublic {
		return nil, errors.Wrap(errors.ErrInvalidInput, "role must be one of OBSERVER, ORGANISATION_MANAGER, ADMIN, SUPER_ADMIN")
	}
	if err := s.guard.RequireManage(caller, access.ActionCreateUser, in.Role, nil); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: user.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionCreate,
		ResourceType:   "user",
		ResourceID:     user.ID,
		Summary:        fmt.Sprintf("created %s %s", user.Role, user.Username),
	})
	return user, nil
}

func (s *Service) createUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	username, err := validator.Name("username", in.Username)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, errors.Wrap(errors.ErrInvalidInput, "password must be at least %d characters", auth.MinPasswordLength)
	}
	var orgName string
	if in.Role.ManagesOrganisation() {
		if orgName, err = validator.Name("organisation name", in.OrganisationName); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    time.Now().Unix(),
	}

	tx, err := s.orgs.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	taken, err := s.users.UsernameTakenTx(ctx, tx, username, "")
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, errors.Wrap(errors.ErrConflict, "username %s is already taken", username)
	}

	if in.Role.ManagesOrganisation() {
		org, err := s.connectOrCreate(ctx, tx, orgName)
		if err != nil {
			return nil, err
		}
		user.OrganisationID = org.ID
		user.Organisation = org
	}

	if err := s.users.CreateTx(ctx, tx, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.Wrap(errors.ErrConflict, "username %s is already taken", username)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return user, nil
}

// connectOrCreate returns the organisation named name, creating it when
// missing.
func (s *Service) connectOrCreate(ctx context.Context, tx *sql.Tx, name string) (*models.Organisation, error) {
	org, err := s.orgs.GetByNameTx(ctx, tx, name)
	if err != nil {
		return nil, fmt.Errorf("get organisation: %w", err)
	}
	if org != nil {
		return org, nil
	}

	org = &models.Organisation{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}
	if err := s.orgs.CreateTx(ctx, tx, org); err != nil {
		return nil, fmt.Errorf("create organisation: %w", err)
	}
	return org, nil
}

func (s *Service) UpdateUser(ctx context.Context, caller access.Caller, id string, in UpdateUserInput) (*models.User, error) {
	if err := s.guard.Require(caller, access.ActionUpdateUser, access.Resource{}); err != nil {
		return nil, err
	}
	if in.Role != nil && (!in.Role.Valid() || *in.Role == models.RolePublic) {
		return nil, errors.Wrap(errors.ErrInvalidInput, "invalid role")
	}

	target, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireManage(caller, access.ActionUpdateUser, target.Role, in.Role); err != nil {
		return nil, err
	}

	updated := *target
	if in.Username != nil {
		if updated.Username, err = validator.Name("username", *in.Username); err != nil {
			return nil, err
		}
	}
	if in.Role != nil {
		updated.Role = *in.Role
	}

	tx, err := s.orgs.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if updated.Username != target.Username {
		taken, err := s.users.UsernameTakenTx(ctx, tx, updated.Username, target.ID)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if taken {
			return nil, errors.Wrap(errors.ErrConflict, "username %s is already taken", updated.Username)
		}
	}

	switch {
	case !updated.Role.ManagesOrganisation():
		updated.OrganisationID = ""
		updated.Organisation = nil
	case in.OrganisationName != nil:
		name, err := validator.Name("organisation name", *in.OrganisationName)
		if err != nil {
			return nil, err
		}
		org, err := s.connectOrCreate(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		updated.OrganisationID = org.ID
		updated.Organisation = org
	case updated.OrganisationID == "":
		return nil, errors.Wrap(errors.ErrInvalidInput, "organisation name is required for role %s", updated.Role)
	}

	leavesOrg := target.OrganisationID != "" && target.Role.ManagesOrganisation() &&
		(updated.OrganisationID != target.OrganisationID || !updated.Role.ManagesOrganisation())
	if leavesOrg {
		managers, err := s.users.CountManagersTx(ctx, tx, target.OrganisationID)
		if err != nil {
			return nil, fmt.Errorf("count managers: %w", err)
		}
		if managers <= 1 {
			return nil, errors.Wrap(errors.ErrConflict, "user is the last manager of organisation %s", target.OrganisationID)
		}
	}

	if err := s.users.UpdateTx(ctx, tx, &updated); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, errors.Wrap(errors.ErrConflict, "username %s is already taken", updated.Username)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if updated.Role != target.Role || updated.OrganisationID != target.OrganisationID {
		s.revoke(ctx, target.ID)
	}

	s.audit.Log(ctx, audit.Event{
		OrganisationID: updated.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionUpdate,
		ResourceType:   "user",
		ResourceID:     updated.ID,
		Summary:        fmt.Sprintf("updated %s %s", updated.Role, updated.Username),
	})
	return &updated, nil
}

// DeleteUser removes a user. When the user was the last manager of its
// organisation, the organisation and everything it owns go with it.
func (s *Service) DeleteUser(ctx context.Context, caller access.Caller, id string) error {
	if err := s.guard.Require(caller, access.ActionDeleteUser, access.Resource{}); err != nil {
		return err
	}

	target, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.guard.RequireManage(caller, access.ActionDeleteUser, target.Role, nil); err != nil {
		return err
	}

	tx, err := s.orgs.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := s.users.DeleteTx(ctx, tx, target.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	cascaded := false
	if target.OrganisationID != "" {
		managers, err := s.users.CountManagersTx(ctx, tx, target.OrganisationID)
		if err != nil {
			return fmt.Errorf("count managers: %w", err)
		}
		if managers == 0 {
			if _, err := s.orgs.DeleteCascadeTx(ctx, tx, target.OrganisationID); err != nil {
				return fmt.Errorf("delete organisation: %w", err)
			}
			cascaded = true
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.revoke(ctx, target.ID)

	summary := "deleted user " + target.Username
	if cascaded {
		summary += " and its organisation"
		log.Info().Str("organisation_id", target.OrganisationID).Str("user_id", target.ID).
			Msg("deleted last manager, organisation removed")
	}
	s.audit.Log(ctx, audit.Event{
		OrganisationID: target.OrganisationID,
		UserID:         caller.UserID,
		Action:         audit.ActionDelete,
		ResourceType:   "user",
		ResourceID:     target.ID,
		Summary:        summary,
	})
	return nil
}

// ChangePassword replaces the caller's password. Callers below ADMIN must
// present the current one.
func (s *Service) ChangePassword(ctx context.Context, caller access.Caller, current, next string) error {
	if err := s.guard.Require(caller, access.ActionChangePassword, access.Resource{}); err != nil {
		return err
	}
	if len(next) < auth.MinPasswordLength {
		return errors.Wrap(errors.ErrInvalidInput, "password must be at least %d characters", auth.MinPasswordLength)
	}

	user, err := s.LoadUser(ctx, caller.UserID)
	if err != nil {
		return err
	}
	if !caller.Role.AtLeast(models.RoleAdmin) && !auth.CheckPassword(user.PasswordHash, current) {
		return errors.Wrap(errors.ErrInvalidInput, "current password is incorrect")
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.revoke(ctx, user.ID)
	return nil
}

// EnsureSuperUser creates the bootstrap account when it is missing. An
// empty password is replaced with a random one that is logged once.
func (s *Service) EnsureSuperUser(ctx context.Context, username, password string) error {
	if username == "" {
		username = "superuser"
	}

	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("get superuser: %w", err)
	}
	if existing != nil {
		return nil
	}

	generated := password == ""
	if generated {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return err
		}
		password = hex.EncodeToString(buf)
	}

	user, err := s.createUser(ctx, CreateUserInput{
		Username:         username,
		Password:         password,
		Role:             models.RoleSuperAdmin,
		OrganisationName: "default",
	})
	if err != nil {
		return err
	}

	event := log.Info().Str("username", user.Username)
	if generated {
		event = log.Warn().Str("username", user.Username).Str("password", password)
	}
	event.Msg("created superuser")
	return nil
}

func (s *Service) getUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "user %s not found", id)
	}
	return user, nil
}

func (s *Service) revoke(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if err := s.sessions.RevokeUser(ctx, userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to revoke sessions")
	}
}
