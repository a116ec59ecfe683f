package data

import (
	"context"
	"sort"
	"sync"

	"opsdashboard/cmd/dashboard-service/internal/domain"
)

// memoryStore 进程内的用户和组织存储，用于本地运行和测试
type memoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	orgs  map[string]domain.Organization
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users: make(map[string]domain.User),
		orgs:  make(map[string]domain.Organization),
	}
}

// withOrg 返回副本，并按 OrgID 填充 Org；调用方需持有读锁
func (s *memoryStore) withOrg(u domain.User) *domain.User {
	u.Org = nil
	if org, ok := s.orgs[u.OrgID]; ok {
		u.Org = &org
	}
	return &u
}

type memoryUserRepo struct {
	store *memoryStore
}

func (r *memoryUserRepo) Create(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, u := range r.store.users {
		if u.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}
	u := *user
	u.Org = nil
	r.store.users[u.ID] = u
	return nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.store.withOrg(u), nil
}

func (r *memoryUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users {
		if u.Username == username {
			return r.store.withOrg(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *memoryUserRepo) Update(_ context.Context, user *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	u := *user
	u.Org = nil
	r.store.users[u.ID] = u
	return nil
}

type memoryOrgRepo struct {
	store *memoryStore
}

func (r *memoryOrgRepo) Create(_ context.Context, org *domain.Organization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, o := range r.store.orgs {
		if o.Slug == org.Slug {
			return ErrOrgSlugTaken
		}
	}
	r.store.orgs[org.ID] = *org
	return nil
}

func (r *memoryOrgRepo) GetByID(_ context.Context, id string) (*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	o, ok := r.store.orgs[id]
	if !ok {
		return nil, domain.ErrOrgNotFound
	}
	return &o, nil
}

func (r *memoryOrgRepo) GetBySlug(_ context.Context, slug string) (*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, o := range r.store.orgs {
		if o.Slug == slug {
			o := o
			return &o, nil
		}
	}
	return nil, domain.ErrOrgNotFound
}

func (r *memoryOrgRepo) List(_ context.Context) ([]*domain.Organization, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	orgs := make([]*domain.Organization, 0, len(r.store.orgs))
	for _, o := range r.store.orgs {
		o := o
		orgs = append(orgs, &o)
	}
	sort.Slice(orgs, func(i, j int) bool {
		if orgs[i].Name != orgs[j].Name {
			return orgs[i].Name < orgs[j].Name
		}
		return orgs[i].Slug < orgs[j].Slug
	})
	return orgs, nil
}

func (r *memoryOrgRepo) Update(_ context.Context, org *domain.Organization) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.orgs[org.ID]; !ok {
		return domain.ErrOrgNotFound
	}
	for id, o := range r.store.orgs {
		if id != org.ID && o.Slug == org.Slug {
			return ErrOrgSlugTaken
		}
	}
	r.store.orgs[org.ID] = *org
	return nil
}
