// Package memory provides an in-process implementation of the repository interfaces.
// Transactions are serialized and rolled back by restoring a snapshot of the whole state.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/repository"
)

type txKey struct{}

type state struct {
	accounts    map[uint]models.Account
	profiles    map[uint]models.Profile
	businesses  map[uint]models.Business
	attachments map[uint]models.AccountBusiness
	challenges  map[uint]models.VerificationChallenge
	auditLogs   map[uint]models.AuditLog
	nextID      map[string]uint
}

func newState() *state {
	return &state{
		accounts:    make(map[uint]models.Account),
		profiles:    make(map[uint]models.Profile),
		businesses:  make(map[uint]models.Business),
		attachments: make(map[uint]models.AccountBusiness),
		challenges:  make(map[uint]models.VerificationChallenge),
		auditLogs:   make(map[uint]models.AuditLog),
		nextID:      make(map[string]uint),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.businesses {
		c.businesses[k] = v
	}
	for k, v := range s.attachments {
		c.attachments[k] = v
	}
	for k, v := range s.challenges {
		c.challenges[k] = v
	}
	for k, v := range s.auditLogs {
		c.auditLogs[k] = v
	}
	for k, v := range s.nextID {
		c.nextID[k] = v
	}
	return c
}

func (s *state) id(table string) uint {
	s.nextID[table]++
	return s.nextID[table]
}

// Store holds every table in memory. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	data     *state
	failures map[string]error
}

func New() *Store {
	return &Store{
		data:     newState(),
		failures: make(map[string]error),
	}
}

// FailOn makes the named operation (for example "create profiles") fail with err until cleared
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// ClearFailures removes every injected failure
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]error)
}

// WithinTransaction runs fn with exclusive access to the store. If fn fails or panics, the state
// captured before fn ran is restored.
func (s *Store) WithinTransaction(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if r := recover(); r != nil {
			s.data = snapshot
			err = &repository.TransactionAbortError{Cause: fmt.Errorf("panic in transaction: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return repository.NewPersistenceError("begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.data = snapshot
		return &repository.TransactionAbortError{Cause: err}
	}
	if err := ctx.Err(); err != nil {
		s.data = snapshot
		return &repository.TransactionAbortError{Cause: repository.NewPersistenceError("commit transaction", err)}
	}
	return nil
}

// do runs fn under the store lock unless ctx already belongs to one of this store's transactions
func (s *Store) do(ctx context.Context, op string, fn func(d *state) error) error {
	if ctx.Value(txKey{}) != s {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := s.failures[op]; err != nil {
		return repository.NewPersistenceError(op, err)
	}
	if err := ctx.Err(); err != nil {
		return repository.NewPersistenceError(op, err)
	}
	if err := fn(s.data); err != nil {
		return repository.NewPersistenceError(op, err)
	}
	return nil
}

func duplicate(column string) error {
	return fmt.Errorf("%w (%s)", repository.ErrDuplicate, column)
}

var errNotFound = errors.New("record not found")

// Transactor returns the store as a repository.Transactor
func (s *Store) Transactor() repository.Transactor { return s }

func (s *Store) Accounts() repository.AccountRepository { return &accountRepo{s: s} }

func (s *Store) Profiles() repository.ProfileRepository { return &profileRepo{s: s} }

func (s *Store) Businesses() repository.BusinessRepository { return &businessRepo{s: s} }

func (s *Store) Attachments() repository.AccountBusinessRepository { return &attachmentRepo{s: s} }

func (s *Store) Challenges() repository.VerificationChallengeRepository { return &challengeRepo{s: s} }

func (s *Store) AuditLogs() repository.AuditLogRepository { return &auditLogRepo{s: s} }

// SeedBusiness inserts a business outside of any registration, as an existing tenant would be
func (s *Store) SeedBusiness(licence, ecarID string) uint {
	var id uint
	_ = s.do(context.Background(), "seed businesses", func(d *state) error {
		id = d.id("businesses")
		d.businesses[id] = models.Business{ID: id, Licence: licence, EcarID: ecarID}
		return nil
	})
	return id
}

// Counts reports the number of rows per table
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"accounts":                len(s.data.accounts),
		"profiles":                len(s.data.profiles),
		"businesses":              len(s.data.businesses),
		"account_businesses":      len(s.data.attachments),
		"verification_challenges": len(s.data.challenges),
		"audit_logs":              len(s.data.auditLogs),
	}
}
