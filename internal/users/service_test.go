package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
)

type memoryUserRepo struct {
	nextID int64
	users  map[int64]User
	roles  map[int64][]RoleRef
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{nextID: 1, users: map[int64]User{}, roles: map[int64][]RoleRef{}}
}

func (m *memoryUserRepo) List(_ context.Context, limit, offset int) ([]User, int, error) {
	var all []User
	for _, u := range m.users {
		all = append(all, u)
	}
	total := len(all)
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *memoryUserRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (m *memoryUserRepo) Create(_ context.Context, u User) (User, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, httpx.ErrDuplicate
		}
	}
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryUserRepo) Update(_ context.Context, id int64, email, name string, isActive bool) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	u.Email, u.Name, u.IsActive = email, name, isActive
	m.users[id] = u
	return u, nil
}

func (m *memoryUserRepo) SetPassword(_ context.Context, id int64, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return httpx.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memoryUserRepo) Delete(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryUserRepo) ListRoles(_ context.Context, userID int64) ([]RoleRef, error) {
	return m.roles[userID], nil
}

func newTestService(repo *memoryUserRepo) *Service {
	return NewService(repo, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateUserHashesPassword(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestService(repo)

	u, err := svc.Create(context.Background(), "Ops@Example.com", "Ops Lead", "s3cret-pass", true)
	require.NoError(t, err)
	require.Equal(t, "ops@example.com", u.Email)
	require.NotEqual(t, "s3cret-pass", u.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret-pass")))
}

func TestCreateUserRejectsShortPassword(t *testing.T) {
	svc := newTestService(newMemoryUserRepo())

	_, err := svc.Create(context.Background(), "ops@example.com", "Ops", "short", true)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), "ops@example.com", "Ops", "s3cret-pass", true)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), "ops@example.com", "Other", "s3cret-pass", true)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestChangePasswordUnknownUser(t *testing.T) {
	svc := newTestService(newMemoryUserRepo())

	err := svc.ChangePassword(context.Background(), 99, "s3cret-pass")
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListPaginationMetadata(t *testing.T) {
	repo := newMemoryUserRepo()
	svc := newTestService(repo)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		_, err := svc.Create(context.Background(), email, "User", "s3cret-pass", true)
		require.NoError(t, err)
	}

	list, meta, err := svc.List(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 3, meta.Total)
	require.Equal(t, 2, meta.TotalPages)
}
