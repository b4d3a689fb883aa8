package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/onboarding/models"
	"github.com/amirphl/onboarding/utils"
)

type accountRepo struct{ s *Store }

func (r *accountRepo) ByID(ctx context.Context, id uint) (*models.Account, error) {
	var out *models.Account
	err := r.s.do(ctx, "find accounts by id", func(d *state) error {
		if a, ok := d.accounts[id]; ok {
			out = &a
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) Save(ctx context.Context, a *models.Account) error {
	return r.s.do(ctx, "create accounts", func(d *state) error {
		for _, other := range d.accounts {
			if other.Email == a.Email {
				return duplicate("email")
			}
			if other.Handle == a.Handle {
				return duplicate("handle")
			}
			if other.UUID == a.UUID {
				return duplicate("uuid")
			}
		}
		a.ID = d.id("accounts")
		now := utils.UTCNow()
		a.CreatedAt, a.UpdatedAt = now, now
		d.accounts[a.ID] = *a
		return nil
	})
}

func (r *accountRepo) ByEmail(ctx context.Context, email string) (*models.Account, error) {
	var out *models.Account
	err := r.s.do(ctx, "find account by email", func(d *state) error {
		for _, a := range d.accounts {
			if a.Email == email {
				out = &a
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *accountRepo) HandlesWithBase(ctx context.Context, base string) ([]string, error) {
	var handles []string
	err := r.s.do(ctx, "list handles", func(d *state) error {
		for _, a := range d.accounts {
			if a.Handle == base || strings.HasPrefix(a.Handle, base+"-") {
				handles = append(handles, a.Handle)
			}
		}
		return nil
	})
	sort.Strings(handles)
	return handles, err
}

func (r *accountRepo) RegistrationView(ctx context.Context, id uint) (*models.Account, error) {
	var out *models.Account
	err := r.s.do(ctx, "load registered account", func(d *state) error {
		a, ok := d.accounts[id]
		if !ok {
			return nil
		}
		a.Role = models.Role{ID: a.RoleID, Name: models.RoleName(a.RoleID)}
		for _, p := range d.profiles {
			if p.AccountID == id {
				a.Profile = &models.Profile{
					ID:          p.ID,
					AccountID:   p.AccountID,
					Phone:       p.Phone,
					Address:     p.Address,
					DateOfBirth: p.DateOfBirth,
					Bio:         p.Bio,
				}
				break
			}
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *accountRepo) MarkEmailVerified(ctx context.Context, id uint, at time.Time) error {
	return r.s.do(ctx, "mark email verified", func(d *state) error {
		a, ok := d.accounts[id]
		if !ok {
			return errNotFound
		}
		a.IsEmailVerified = utils.ToPtr(true)
		a.EmailVerifiedAt = &at
		a.UpdatedAt = at
		d.accounts[id] = a
		return nil
	})
}

type profileRepo struct{ s *Store }

func (r *profileRepo) ByID(ctx context.Context, id uint) (*models.Profile, error) {
	var out *models.Profile
	err := r.s.do(ctx, "find profiles by id", func(d *state) error {
		if p, ok := d.profiles[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *profileRepo) Save(ctx context.Context, p *models.Profile) error {
	return r.s.do(ctx, "create profiles", func(d *state) error {
		if _, ok := d.accounts[p.AccountID]; !ok {
			return errNotFound
		}
		for _, other := range d.profiles {
			if other.AccountID == p.AccountID {
				return duplicate("account_id")
			}
		}
		p.ID = d.id("profiles")
		d.profiles[p.ID] = *p
		return nil
	})
}

func (r *profileRepo) ByAccountID(ctx context.Context, accountID uint) (*models.Profile, error) {
	var out *models.Profile
	err := r.s.do(ctx, "find profile by account", func(d *state) error {
		for _, p := range d.profiles {
			if p.AccountID == accountID {
				out = &p
				return nil
			}
		}
		return nil
	})
	return out, err
}

type businessRepo struct{ s *Store }

func (r *businessRepo) ByID(ctx context.Context, id uint) (*models.Business, error) {
	var out *models.Business
	err := r.s.do(ctx, "find businesses by id", func(d *state) error {
		if b, ok := d.businesses[id]; ok {
			out = &b
		}
		return nil
	})
	return out, err
}

func (r *businessRepo) Save(ctx context.Context, b *models.Business) error {
	return r.s.do(ctx, "create businesses", func(d *state) error {
		for _, other := range d.businesses {
			if other.EcarID == b.EcarID {
				return duplicate("ecar_id")
			}
		}
		b.ID = d.id("businesses")
		d.businesses[b.ID] = *b
		return nil
	})
}

func (r *businessRepo) ByEcarID(ctx context.Context, ecarID string) (*models.Business, error) {
	var out *models.Business
	err := r.s.do(ctx, "find business by ecar id", func(d *state) error {
		for _, b := range d.businesses {
			if b.EcarID == ecarID {
				out = &b
				return nil
			}
		}
		return nil
	})
	return out, err
}

type attachmentRepo struct{ s *Store }

func (r *attachmentRepo) ByID(ctx context.Context, id uint) (*models.AccountBusiness, error) {
	var out *models.AccountBusiness
	err := r.s.do(ctx, "find account_businesses by id", func(d *state) error {
		if ab, ok := d.attachments[id]; ok {
			out = &ab
		}
		return nil
	})
	return out, err
}

func (r *attachmentRepo) Save(ctx context.Context, ab *models.AccountBusiness) error {
	return r.s.do(ctx, "create account_businesses", func(d *state) error {
		if _, ok := d.accounts[ab.AccountID]; !ok {
			return errNotFound
		}
		if _, ok := d.businesses[ab.BusinessID]; !ok {
			return errNotFound
		}
		for _, other := range d.attachments {
			if other.AccountID == ab.AccountID && other.BusinessID == ab.BusinessID {
				return duplicate("account_id, business_id")
			}
		}
		ab.ID = d.id("account_businesses")
		d.attachments[ab.ID] = *ab
		return nil
	})
}

func (r *attachmentRepo) BusinessIDsByAccount(ctx context.Context, accountID uint) ([]uint, error) {
	var attached []models.AccountBusiness
	err := r.s.do(ctx, "list account businesses", func(d *state) error {
		for _, ab := range d.attachments {
			if ab.AccountID == accountID {
				attached = append(attached, ab)
			}
		}
		return nil
	})
	sort.Slice(attached, func(i, j int) bool { return attached[i].ID < attached[j].ID })
	ids := make([]uint, 0, len(attached))
	for _, ab := range attached {
		ids = append(ids, ab.BusinessID)
	}
	return ids, err
}

func (r *attachmentRepo) CountByBusiness(ctx context.Context, businessID uint) (int64, error) {
	var n int64
	err := r.s.do(ctx, "count business accounts", func(d *state) error {
		for _, ab := range d.attachments {
			if ab.BusinessID == businessID {
				n++
			}
		}
		return nil
	})
	return n, err
}

type challengeRepo struct{ s *Store }

func (r *challengeRepo) ByID(ctx context.Context, id uint) (*models.VerificationChallenge, error) {
	var out *models.VerificationChallenge
	err := r.s.do(ctx, "find verification_challenges by id", func(d *state) error {
		if c, ok := d.challenges[id]; ok {
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *challengeRepo) Save(ctx context.Context, c *models.VerificationChallenge) error {
	return r.s.do(ctx, "create verification_challenges", func(d *state) error {
		if _, ok := d.accounts[c.AccountID]; !ok {
			return errNotFound
		}
		if c.Status == "" {
			c.Status = models.ChallengeStatusPending
		}
		if c.Status == models.ChallengeStatusPending {
			for _, other := range d.challenges {
				if other.AccountID == c.AccountID && other.Channel == c.Channel && other.Status == models.ChallengeStatusPending {
					return duplicate("account_id, channel")
				}
			}
		}
		c.ID = d.id("verification_challenges")
		now := utils.UTCNow()
		c.CreatedAt, c.UpdatedAt = now, now
		d.challenges[c.ID] = *c
		return nil
	})
}

func (r *challengeRepo) ActiveByAccountAndChannel(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error) {
	var out *models.VerificationChallenge
	err := r.s.do(ctx, "find active challenge", func(d *state) error {
		for _, c := range d.challenges {
			if c.AccountID == accountID && c.Channel == channel && c.Status == models.ChallengeStatusPending {
				if out == nil || c.ID > out.ID {
					found := c
					out = &found
				}
			}
		}
		return nil
	})
	return out, err
}

// ActiveForUpdate needs no lock here; transactions on the store already run one at a time
func (r *challengeRepo) ActiveForUpdate(ctx context.Context, accountID uint, channel string) (*models.VerificationChallenge, error) {
	return r.ActiveByAccountAndChannel(ctx, accountID, channel)
}

func (r *challengeRepo) ListByAccountAndChannel(ctx context.Context, accountID uint, channel string) ([]*models.VerificationChallenge, error) {
	var out []*models.VerificationChallenge
	err := r.s.do(ctx, "list challenges", func(d *state) error {
		for _, c := range d.challenges {
			if c.AccountID == accountID && c.Channel == channel {
				found := c
				out = append(out, &found)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, err
}

func (r *challengeRepo) ExpireActive(ctx context.Context, accountID uint, channel string) (int64, error) {
	var n int64
	err := r.s.do(ctx, "expire active challenges", func(d *state) error {
		now := utils.UTCNow()
		for id, c := range d.challenges {
			if c.AccountID == accountID && c.Channel == channel && c.Status == models.ChallengeStatusPending {
				c.Status = models.ChallengeStatusExpired
				c.UpdatedAt = now
				d.challenges[id] = c
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *challengeRepo) RecordFailedAttempt(ctx context.Context, id uint) error {
	return r.s.do(ctx, "record failed attempt", func(d *state) error {
		c, ok := d.challenges[id]
		if !ok {
			return errNotFound
		}
		if c.AttemptsCount < c.MaxAttempts {
			c.AttemptsCount++
		}
		c.UpdatedAt = utils.UTCNow()
		d.challenges[id] = c
		return nil
	})
}

func (r *challengeRepo) UpdateStatus(ctx context.Context, id uint, status string, consumedAt *time.Time) error {
	return r.s.do(ctx, "update challenge status", func(d *state) error {
		c, ok := d.challenges[id]
		if !ok {
			return errNotFound
		}
		c.Status = status
		if consumedAt != nil {
			at := *consumedAt
			c.ConsumedAt = &at
		}
		c.UpdatedAt = utils.UTCNow()
		d.challenges[id] = c
		return nil
	})
}

type auditLogRepo struct{ s *Store }

func (r *auditLogRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	var out *models.AuditLog
	err := r.s.do(ctx, "find audit_logs by id", func(d *state) error {
		if l, ok := d.auditLogs[id]; ok {
			out = &l
		}
		return nil
	})
	return out, err
}

func (r *auditLogRepo) Save(ctx context.Context, l *models.AuditLog) error {
	return r.s.do(ctx, "create audit_logs", func(d *state) error {
		l.ID = d.id("audit_logs")
		l.CreatedAt = utils.UTCNow()
		d.auditLogs[l.ID] = *l
		return nil
	})
}

func (r *auditLogRepo) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	err := r.s.do(ctx, "list audit logs", func(d *state) error {
		for _, l := range d.auditLogs {
			if l.AccountID != nil && *l.AccountID == accountID {
				found := l
				out = append(out, &found)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset > 0 {
		if offset >= len(out) {
			return nil, err
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}
