package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"paygate-backend/internal/domains/team/model"
	"paygate-backend/internal/domains/team/repository"
	"paygate-backend/pkg/cache"
	"paygate-backend/pkg/jwt"
	"paygate-backend/pkg/logger"
	"paygate-backend/pkg/token"
)

// =====================================================
// TEAM SERVICE
// =====================================================
// Owns merchant accounts: token authentication with failed-auth
// lockout, dashboard login, and CRUD for the admin surface.

type TeamService struct {
	repo       repository.TeamRepository
	cache      cache.Cache
	jwtManager *jwt.Manager

	failLimit  int
	lockWindow time.Duration
}

func NewTeamService(repo repository.TeamRepository, c cache.Cache, jwtManager *jwt.Manager, failLimit int, lockWindow time.Duration) *TeamService {
	return &TeamService{
		repo:       repo,
		cache:      c,
		jwtManager: jwtManager,
		failLimit:  failLimit,
		lockWindow: lockWindow,
	}
}

func failKey(teamID uuid.UUID) string {
	return fmt.Sprintf("team:auth_failures:%s", teamID)
}

// Authenticate verifies a merchant request token.
//
// Business Logic Flow:
// 1. Load the team by slug; it must exist, be active, and not be
//    inside a lockout window.
// 2. Recompute the canonical token over the request parameters with
//    the team secret and compare in constant time.
// 3. On mismatch bump the windowed failure counter; the fifth failure
//    locks the team for the lock window.
// 4. On success reset the counter.
func (s *TeamService) Authenticate(ctx context.Context, teamSlug string, params map[string]interface{}, submitted string) (*model.Team, error) {
	team, err := s.repo.GetBySlug(ctx, teamSlug)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if !team.IsActive {
		return nil, model.ErrTeamInactive
	}
	if team.IsLocked(now) {
		return nil, model.ErrTeamLocked
	}

	if !token.Verify(params, team.Password, submitted) {
		if err := s.recordFailure(ctx, team, now); err != nil {
			logger.Error("failed to record auth failure", err)
		}
		return nil, model.ErrInvalidToken
	}

	if team.FailedAuthCount > 0 {
		if err := s.repo.ResetAuthFailures(ctx, team.ID); err != nil {
			logger.Error("failed to reset auth failures", err)
		}
	}
	if err := s.cache.Delete(ctx, failKey(team.ID)); err != nil {
		logger.Error("failed to clear auth failure counter", err)
	}

	return team, nil
}

// recordFailure counts a token mismatch inside the sliding window and
// locks the team when the limit is reached.
func (s *TeamService) recordFailure(ctx context.Context, team *model.Team, now time.Time) error {
	count, err := s.cache.Increment(ctx, failKey(team.ID))
	if err != nil {
		return err
	}
	if count == 1 {
		if err := s.cache.Expire(ctx, failKey(team.ID), s.lockWindow); err != nil {
			return err
		}
	}

	var lockUntil *time.Time
	if count >= int64(s.failLimit) {
		until := now.Add(s.lockWindow)
		lockUntil = &until
		logger.Warn("team locked after repeated auth failures", map[string]interface{}{
			"team_slug": team.TeamSlug,
			"failures":  count,
			"until":     until,
		})
	}

	return s.repo.RecordAuthFailure(ctx, team.ID, lockUntil)
}

// Login authenticates a dashboard operator and issues a JWT.
func (s *TeamService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	team, err := s.repo.GetBySlug(ctx, req.TeamSlug)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}
	if !team.IsActive {
		return nil, model.ErrTeamInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(team.DashboardPasswordHash), []byte(req.Password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	accessToken, err := s.jwtManager.GenerateAccessToken(team.ID.String(), team.Email, "merchant")
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &model.LoginResponse{
		AccessToken: accessToken,
		TeamSlug:    team.TeamSlug,
	}, nil
}

// Create registers a merchant account.
func (s *TeamService) Create(ctx context.Context, req model.CreateTeamRequest) (*model.Team, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.DashboardPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dashboard password: %w", err)
	}

	team := &model.Team{
		ID:                    uuid.New(),
		TeamSlug:              req.TeamSlug,
		Name:                  req.Name,
		Email:                 req.Email,
		IsActive:              true,
		Password:              req.Password,
		DashboardPasswordHash: string(hash),
		MinPaymentAmount:      req.MinPaymentAmount,
		MaxPaymentAmount:      req.MaxPaymentAmount,
		DailyPaymentLimit:     req.DailyPaymentLimit,
		SupportedCurrencies:   req.SupportedCurrencies,
		WebhookURL:            req.WebhookURL,
		RetryEnabled:          true,
	}

	if err := s.repo.Create(ctx, team); err != nil {
		return nil, err
	}

	logger.Info("team created", map[string]interface{}{"team_slug": team.TeamSlug})
	return team, nil
}

// Update applies partial changes to a team.
func (s *TeamService) Update(ctx context.Context, id uuid.UUID, req model.UpdateTeamRequest) (*model.Team, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	team, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		team.Name = *req.Name
	}
	if req.IsActive != nil {
		team.IsActive = *req.IsActive
	}
	if req.MinPaymentAmount != nil {
		team.MinPaymentAmount = *req.MinPaymentAmount
	}
	if req.MaxPaymentAmount != nil {
		team.MaxPaymentAmount = *req.MaxPaymentAmount
	}
	if req.DailyPaymentLimit != nil {
		team.DailyPaymentLimit = *req.DailyPaymentLimit
	}
	if req.SupportedCurrencies != nil {
		team.SupportedCurrencies = req.SupportedCurrencies
	}
	if req.WebhookURL != nil {
		team.WebhookURL = req.WebhookURL
	}
	if req.RetryEnabled != nil {
		team.RetryEnabled = *req.RetryEnabled
	}
	if req.FraudCheckEnabled != nil {
		team.FraudCheckEnabled = *req.FraudCheckEnabled
	}

	if err := s.repo.Update(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

// GetBySlug loads a team by its slug.
func (s *TeamService) GetBySlug(ctx context.Context, slug string) (*model.Team, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// List pages through teams for the admin surface.
func (s *TeamService) List(ctx context.Context, page, limit int) ([]*model.Team, int, error) {
	return s.repo.List(ctx, page, limit)
}

// Unlock clears a lockout ahead of its expiry.
func (s *TeamService) Unlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.ResetAuthFailures(ctx, id); err != nil {
		return err
	}
	return s.cache.Delete(ctx, failKey(id))
}
