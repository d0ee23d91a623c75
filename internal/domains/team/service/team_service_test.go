package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"paygate-backend/internal/domains/team/model"
	"paygate-backend/pkg/jwt"
	"paygate-backend/pkg/token"
)

// fakeTeamRepo keeps teams in memory.
type fakeTeamRepo struct {
	mu    sync.Mutex
	teams map[string]*model.Team
}

func newFakeTeamRepo(teams ...*model.Team) *fakeTeamRepo {
	r := &fakeTeamRepo{teams: make(map[string]*model.Team)}
	for _, t := range teams {
		r.teams[t.TeamSlug] = t
	}
	return r
}

func (r *fakeTeamRepo) Create(_ context.Context, t *model.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[t.TeamSlug]; ok {
		return model.ErrSlugTaken
	}
	r.teams[t.TeamSlug] = t
	return nil
}

func (r *fakeTeamRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, model.ErrTeamNotFound
}

func (r *fakeTeamRepo) GetBySlug(_ context.Context, slug string) (*model.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.teams[slug]; ok {
		return t, nil
	}
	return nil, model.ErrTeamNotFound
}

func (r *fakeTeamRepo) Update(_ context.Context, t *model.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams[t.TeamSlug] = t
	return nil
}

func (r *fakeTeamRepo) List(_ context.Context, _, _ int) ([]*model.Team, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Team
	for _, t := range r.teams {
		out = append(out, t)
	}
	return out, len(out), nil
}

func (r *fakeTeamRepo) RecordAuthFailure(_ context.Context, id uuid.UUID, lockUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == id {
			t.FailedAuthCount++
			if lockUntil != nil {
				t.LockedUntil = lockUntil
			}
			return nil
		}
	}
	return model.ErrTeamNotFound
}

func (r *fakeTeamRepo) ResetAuthFailures(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.teams {
		if t.ID == id {
			t.FailedAuthCount = 0
			t.LockedUntil = nil
			return nil
		}
	}
	return nil
}

// fakeCache implements the counter subset the service touches.
type fakeCache struct {
	mu        sync.Mutex
	counters  map[string]int64
	deleteErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{counters: make(map[string]int64)}
}

func (c *fakeCache) Get(_ context.Context, _ string, _ interface{}) (bool, error) { return false, nil }
func (c *fakeCache) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) error {
	return nil
}
func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	for _, k := range keys {
		delete(c.counters, k)
	}
	return nil
}
func (c *fakeCache) Ping(_ context.Context) error                  { return nil }
func (c *fakeCache) DeletePattern(_ context.Context, _ string) error { return nil }
func (c *fakeCache) Increment(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}
func (c *fakeCache) Exists(_ context.Context, _ string) (bool, error)            { return false, nil }
func (c *fakeCache) Expire(_ context.Context, _ string, _ time.Duration) error   { return nil }
func (c *fakeCache) TTL(_ context.Context, _ string) (time.Duration, error)      { return 0, nil }

const apiPassword = "terminal-secret-password"

func activeTeam() *model.Team {
	hash, _ := bcrypt.GenerateFromPassword([]byte("dashboard-pass"), bcrypt.MinCost)
	return &model.Team{
		ID:                    uuid.New(),
		TeamSlug:              "acme",
		Name:                  "Acme",
		Email:                 "ops@acme.test",
		IsActive:              true,
		Password:              apiPassword,
		DashboardPasswordHash: string(hash),
	}
}

func newTestService(repo *fakeTeamRepo) *TeamService {
	return NewTeamService(repo, newFakeCache(), jwt.NewManager("test-secret"), 5, 30*time.Minute)
}

func signedParams(amount int64) map[string]interface{} {
	params := map[string]interface{}{
		"TeamSlug": "acme",
		"OrderId":  "O-1",
		"Amount":   amount,
		"Currency": "RUB",
	}
	params["Token"] = token.Generate(params, apiPassword)
	return params
}

func TestAuthenticate_Success(t *testing.T) {
	team := activeTeam()
	svc := newTestService(newFakeTeamRepo(team))

	params := signedParams(150000)
	got, err := svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	require.NoError(t, err)
	assert.Equal(t, team.ID, got.ID)
}

func TestAuthenticate_TamperedAmount(t *testing.T) {
	team := activeTeam()
	svc := newTestService(newFakeTeamRepo(team))

	params := signedParams(150000)
	params["Amount"] = int64(150001)

	_, err := svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	assert.ErrorIs(t, err, model.ErrInvalidToken)
	assert.Equal(t, 1, team.FailedAuthCount)
}

func TestAuthenticate_LockoutAfterFiveFailures(t *testing.T) {
	team := activeTeam()
	svc := newTestService(newFakeTeamRepo(team))

	params := signedParams(150000)
	for i := 0; i < 5; i++ {
		_, err := svc.Authenticate(context.Background(), "acme", params, "bogus")
		assert.ErrorIs(t, err, model.ErrInvalidToken)
	}

	require.NotNil(t, team.LockedUntil)
	assert.True(t, team.LockedUntil.After(time.Now()))

	// Even a valid token is rejected while the lockout holds.
	_, err := svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	assert.ErrorIs(t, err, model.ErrTeamLocked)
}

func TestAuthenticate_SuccessResetsCounter(t *testing.T) {
	team := activeTeam()
	svc := newTestService(newFakeTeamRepo(team))

	params := signedParams(150000)
	_, err := svc.Authenticate(context.Background(), "acme", params, "bogus")
	assert.ErrorIs(t, err, model.ErrInvalidToken)
	assert.Equal(t, 1, team.FailedAuthCount)

	_, err = svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	require.NoError(t, err)
	assert.Equal(t, 0, team.FailedAuthCount)
}

func TestAuthenticate_CacheDeleteFailureDoesNotBlockAuth(t *testing.T) {
	team := activeTeam()
	cache := newFakeCache()
	cache.deleteErr = errors.New("redis connection refused")
	svc := NewTeamService(newFakeTeamRepo(team), cache, jwt.NewManager("test-secret"), 5, 30*time.Minute)

	params := signedParams(150000)
	got, err := svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	require.NoError(t, err)
	assert.Equal(t, team.ID, got.ID)
}

func TestAuthenticate_InactiveTeam(t *testing.T) {
	team := activeTeam()
	team.IsActive = false
	svc := newTestService(newFakeTeamRepo(team))

	params := signedParams(150000)
	_, err := svc.Authenticate(context.Background(), "acme", params, params["Token"].(string))
	assert.ErrorIs(t, err, model.ErrTeamInactive)
}

func TestLogin(t *testing.T) {
	team := activeTeam()
	svc := newTestService(newFakeTeamRepo(team))

	resp, err := svc.Login(context.Background(), model.LoginRequest{TeamSlug: "acme", Password: "dashboard-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = svc.Login(context.Background(), model.LoginRequest{TeamSlug: "acme", Password: "wrong"})
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestUnlock(t *testing.T) {
	team := activeTeam()
	until := time.Now().Add(time.Hour)
	team.LockedUntil = &until
	team.FailedAuthCount = 5
	svc := newTestService(newFakeTeamRepo(team))

	require.NoError(t, svc.Unlock(context.Background(), team.ID))
	assert.Nil(t, team.LockedUntil)
	assert.Zero(t, team.FailedAuthCount)
}
