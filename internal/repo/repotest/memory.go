// Package repotest provides an in-memory Credential Store for tests. It mirrors the postgres repos:
// unique phones, partial updates, and updated_at stamped on every write.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luckyshop/server/internal/model"
	"github.com/luckyshop/server/internal/repo"
)

// Clock is a settable time source shared by the store and the services under test
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock frozen at t
func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Set moves the clock to t
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Store implements repo.UserRepo, repo.OtpRepo and repo.SettingRepo in memory
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	nextUser int64
	nextOtp  int64
	users    map[int64]model.User
	otps     map[int64]model.OtpChallenge
	settings map[string]string
}

// NewStore creates an empty store stamping rows with now
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		users:    make(map[int64]model.User),
		otps:     make(map[int64]model.OtpChallenge),
		settings: make(map[string]string),
	}
}

// Users returns the store as a repo.UserRepo
func (s *Store) Users() repo.UserRepo { return userStore{s} }

// Otps returns the store as a repo.OtpRepo
func (s *Store) Otps() repo.OtpRepo { return otpStore{s} }

// Settings returns the store as a repo.SettingRepo
func (s *Store) Settings() repo.SettingRepo { return settingStore{s} }

// SetSetting writes a setting value
func (s *Store) SetSetting(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
}

// PutUser stores u as is, assigning an id when zero. Used to seed fixtures.
func (s *Store) PutUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		s.nextUser++
		u.ID = s.nextUser
	}
	s.users[u.ID] = u
	return u
}

// PutOtp stores c as is, assigning an id when zero. Used to seed fixtures.
func (s *Store) PutOtp(c model.OtpChallenge) model.OtpChallenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		s.nextOtp++
		c.ID = s.nextOtp
	}
	s.otps[c.ID] = c
	return c
}

// OtpCount returns the number of challenge rows
func (s *Store) OtpCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.otps)
}

type userStore struct{ *Store }

func (s userStore) GetByID(_ context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("get user by id: %w", repo.ErrNotFound)
	}
	return u, nil
}

func (s userStore) GetByPhone(_ context.Context, phone string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("get user by phone: %w", repo.ErrNotFound)
}

func (s userStore) Create(_ context.Context, nu model.NewUser) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone == nu.Phone {
			return model.User{}, fmt.Errorf("create user: %w", repo.ErrConflict)
		}
	}
	now := s.now()
	s.nextUser++
	u := model.User{
		ID:                 s.nextUser,
		Phone:              nu.Phone,
		PasswordHash:       nu.PasswordHash,
		Role:               model.RoleUser,
		Status:             model.StatusActive,
		SessionFingerprint: nu.SessionFingerprint,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s userStore) Update(_ context.Context, id int64, upd model.UserUpdate) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("update user: %w", repo.ErrNotFound)
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	if upd.ErrorLoginCount != nil {
		u.ErrorLoginCount = *upd.ErrorLoginCount
	} else if upd.IncrementErrorLoginCount {
		u.ErrorLoginCount++
	}
	if upd.SessionFingerprint != nil {
		u.SessionFingerprint = *upd.SessionFingerprint
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

func (s userStore) SwapFingerprint(_ context.Context, id int64, current, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.SessionFingerprint != current {
		return false, nil
	}
	u.SessionFingerprint = next
	u.UpdatedAt = s.now()
	s.users[id] = u
	return true, nil
}

type otpStore struct{ *Store }

func (s otpStore) GetByPhone(_ context.Context, phone string) (model.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.otps {
		if c.Phone == phone {
			return c, nil
		}
	}
	return model.OtpChallenge{}, fmt.Errorf("get otp challenge: %w", repo.ErrNotFound)
}

func (s otpStore) Create(_ context.Context, nc model.NewOtpChallenge) (model.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.otps {
		if c.Phone == nc.Phone {
			return model.OtpChallenge{}, fmt.Errorf("create otp challenge: %w", repo.ErrConflict)
		}
	}
	now := s.now()
	s.nextOtp++
	c := model.OtpChallenge{
		ID:            s.nextOtp,
		Phone:         nc.Phone,
		OTPHash:       nc.OTPHash,
		RememberToken: nc.RememberToken,
		RequestCount:  1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.otps[c.ID] = c
	return c, nil
}

func (s otpStore) Update(_ context.Context, id int64, upd model.OtpUpdate) (model.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.otps[id]
	if !ok {
		return model.OtpChallenge{}, fmt.Errorf("update otp challenge: %w", repo.ErrNotFound)
	}
	if upd.OTPHash != nil {
		c.OTPHash = *upd.OTPHash
	}
	if upd.RememberToken != nil {
		c.RememberToken = *upd.RememberToken
	}
	if upd.VerifyToken != nil {
		c.VerifyToken = *upd.VerifyToken
	}
	if upd.RequestCount != nil {
		c.RequestCount = *upd.RequestCount
	} else if upd.IncrementRequestCount {
		c.RequestCount++
	}
	if upd.ErrorCount != nil {
		c.ErrorCount = *upd.ErrorCount
	} else if upd.IncrementErrorCount {
		c.ErrorCount++
	}
	c.UpdatedAt = s.now()
	s.otps[id] = c
	return c, nil
}

type settingStore struct{ *Store }

func (s settingStore) GetValue(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	if !ok {
		return "", fmt.Errorf("get setting %q: %w", key, repo.ErrNotFound)
	}
	return v, nil
}
