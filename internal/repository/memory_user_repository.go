package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/repairdesk/internal/domain"
	"github.com/spec-kit/repairdesk/internal/ids"
)

var (
	_ UserRepository          = (*MemoryAccountStore)(nil)
	_ PaymentMethodRepository = (*MemoryPaymentMethodRepository)(nil)
)

// MemoryAccountStore is an in-process UserRepository used when no Postgres DSN
// is configured. It shares payment methods with a MemoryPaymentMethodRepository
// so HasPaymentMethod is derived the same way as the SQL EXISTS subquery.
type MemoryAccountStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	payments *MemoryPaymentMethodRepository
}

// NewMemoryAccountStore builds empty user and payment method stores.
func NewMemoryAccountStore() (*MemoryAccountStore, *MemoryPaymentMethodRepository) {
	payments := &MemoryPaymentMethodRepository{methods: make(map[string]domain.PaymentMethod)}
	return &MemoryAccountStore{users: make(map[string]domain.User), payments: payments}, payments
}

func (r *MemoryAccountStore) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = ids.NewEntityID()
	}
	now := time.Now().UTC()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt, user.UpdatedAt = now, now
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryAccountStore) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	user.Role = current.Role
	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryAccountStore) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	r.mu.Lock()
	current, ok := r.users[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	current.Role = role
	current.UpdatedAt = time.Now().UTC()
	r.users[id] = current
	r.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r *MemoryAccountStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	user, ok := r.users[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.withPaymentFlag(ctx, user), nil
}

func (r *MemoryAccountStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return r.withPaymentFlag(ctx, user), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryAccountStore) List(ctx context.Context, filter UserFilter) ([]domain.User, int64, error) {
	r.mu.RLock()
	matched := make([]domain.User, 0, len(r.users))
	for _, user := range r.users {
		if matchUser(filter, user) {
			matched = append(matched, *r.withPaymentFlag(ctx, user))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := int64(len(matched))
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	if offset >= len(matched) {
		return []domain.User{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *MemoryAccountStore) withPaymentFlag(ctx context.Context, user domain.User) *domain.User {
	count, _ := r.payments.CountByUser(ctx, user.ID)
	user.HasPaymentMethod = count > 0
	return &user
}

func matchUser(f UserFilter, u domain.User) bool {
	if len(f.Roles) > 0 {
		found := false
		for _, role := range f.Roles {
			if u.Role == role {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Active != nil && u.Active != *f.Active {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(u.Name), term) &&
			!strings.Contains(strings.ToLower(u.Email), term) {
			return false
		}
	}
	return true
}

// MemoryPaymentMethodRepository is the in-process PaymentMethodRepository.
type MemoryPaymentMethodRepository struct {
	mu      sync.RWMutex
	methods map[string]domain.PaymentMethod
}

func (r *MemoryPaymentMethodRepository) Create(_ context.Context, pm *domain.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hasAny := false
	for _, existing := range r.methods {
		if existing.Provider == pm.Provider && existing.ProviderRef == pm.ProviderRef {
			return ErrDuplicate
		}
		if existing.UserID == pm.UserID {
			hasAny = true
		}
	}
	pm.ID = ids.NewEntityID()
	pm.IsDefault = !hasAny
	pm.CreatedAt = time.Now().UTC()
	r.methods[pm.ID] = *pm
	return nil
}

func (r *MemoryPaymentMethodRepository) ListByUser(_ context.Context, userID string) ([]domain.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := []domain.PaymentMethod{}
	for _, pm := range r.methods {
		if pm.UserID == userID {
			methods = append(methods, pm)
		}
	}
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].IsDefault != methods[j].IsDefault {
			return methods[i].IsDefault
		}
		return methods[i].CreatedAt.Before(methods[j].CreatedAt)
	})
	return methods, nil
}

func (r *MemoryPaymentMethodRepository) CountByUser(_ context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, pm := range r.methods {
		if pm.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryPaymentMethodRepository) SetDefault(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.methods[id]
	if !ok || target.UserID != userID {
		return ErrNotFound
	}
	for key, pm := range r.methods {
		if pm.UserID == userID {
			pm.IsDefault = key == id
			r.methods[key] = pm
		}
	}
	return nil
}

func (r *MemoryPaymentMethodRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.methods[id]
	if !ok || target.UserID != userID {
		return ErrNotFound
	}
	delete(r.methods, id)
	return nil
}
