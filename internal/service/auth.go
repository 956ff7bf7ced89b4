package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/refnexus/platform/internal/auth"
	"github.com/refnexus/platform/internal/domain"
	"github.com/refnexus/platform/internal/guard"
	"github.com/refnexus/platform/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles registration, login and the current-user lookup.
type AuthService struct {
	pool     *pgxpool.Pool
	users    repository.UserRepository
	referees repository.RefereeRepository
	leagues  repository.LeagueRepository
	outbox   repository.OutboxRepository
	jwtMgr   *auth.JWTManager
	lockout  *guard.Lockout
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	referees repository.RefereeRepository,
	leagues repository.LeagueRepository,
	outbox repository.OutboxRepository,
	jwtMgr *auth.JWTManager,
	lockout *guard.Lockout,
) *AuthService {
	return &AuthService{
		pool:     pool,
		users:    users,
		referees: referees,
		leagues:  leagues,
		outbox:   outbox,
		jwtMgr:   jwtMgr,
		lockout:  lockout,
	}
}

// RegisterInput holds the registration request fields. Name becomes the
// referee's full name or the league name; Region the home location or the
// league's primary region.
type RegisterInput struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
	Name     string      `json:"name"`
	Region   string      `json:"region"`
	Level    string      `json:"level"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *domain.User `json:"user"`
}

// Me is the current user together with their side's profile.
type Me struct {
	User    *domain.User           `json:"user"`
	Referee *domain.RefereeProfile `json:"referee,omitempty"`
	League  *domain.League         `json:"league,omitempty"`
}

func (in *RegisterInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Region = strings.TrimSpace(in.Region)
}

// Register creates the user and its referee profile or league in one transaction.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.normalize()
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidationField("email", err.Error())
	}
	if len(input.Password) < domain.MinPasswordLength {
		return nil, domain.ErrValidationField("password", "password must be at least 8 characters")
	}
	if !input.Role.Valid() {
		return nil, domain.ErrValidationField("role", "role must be referee or league")
	}
	if input.Name == "" {
		return nil, domain.ErrValidationField("name", "name is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		Role:         input.Role,
	}

	err = inTx(ctx, s.pool, "register", func(tx pgx.Tx) error {
		existing, err := s.users.FindByEmail(ctx, tx, input.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrConflict("email already registered")
		}
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}

		switch input.Role {
		case domain.RoleReferee:
			err = s.referees.Create(ctx, tx, &domain.RefereeProfile{
				ID:           uuid.New(),
				UserID:       user.ID,
				FullName:     input.Name,
				HomeLocation: input.Region,
			})
		case domain.RoleLeague:
			err = s.leagues.Create(ctx, tx, &domain.League{
				ID:            uuid.New(),
				UserID:        user.ID,
				Name:          input.Name,
				PrimaryRegion: input.Region,
				Level:         input.Level,
			})
		}
		if err != nil {
			return err
		}

		return s.outbox.Insert(ctx, tx, domain.NewEvent(domain.AggregateUser, user.ID, domain.EventUserRegistered, map[string]string{
			"user_id": user.ID.String(),
			"role":    string(user.Role),
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.issue(user)
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IP       string `json:"-"`
}

// Login authenticates a user and returns a JWT. Repeated failures lock the
// email out for a while.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, domain.ErrValidation("email and password are required")
	}

	if err := s.lockout.CheckLocked(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.pool, email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		s.lockout.RecordAttempt(ctx, email, input.IP, false)
		return nil, domain.ErrUnauthorized("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.lockout.RecordAttempt(ctx, email, input.IP, false)
		return nil, domain.ErrUnauthorized("invalid email or password")
	}

	s.lockout.RecordAttempt(ctx, email, input.IP, true)
	return s.issue(user)
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.jwtMgr.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &AuthResult{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.jwtMgr.Expiry().Seconds()),
		User:        user,
	}, nil
}

// Me returns the authenticated user and their profile.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*Me, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("user no longer exists")
	}

	me := &Me{User: user}
	switch user.Role {
	case domain.RoleReferee:
		me.Referee, err = s.referees.FindByUserID(ctx, s.pool, userID)
	case domain.RoleLeague:
		me.League, err = s.leagues.FindByUserID(ctx, s.pool, userID)
	}
	if err != nil {
		return nil, domain.ErrInternal("find profile", err)
	}
	return me, nil
}
