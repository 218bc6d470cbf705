package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/petstore-api/internal/auth"
	"github.com/spec-kit/petstore-api/internal/domain"
	"github.com/spec-kit/petstore-api/internal/orm"
)

func newAuthService(t *testing.T, users orm.Client) (*AuthService, *auth.TokenManager) {
	t.Helper()
	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)
	return NewAuthService(AuthDependencies{Users: users, Tokens: tokens}), tokens
}

func seedUser(t *testing.T, store orm.Client, id, email, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	_, err = store.Create(context.Background(), domain.ModelUser, domain.Record{
		domain.FieldID: id,
		"email":        email,
		"password":     hash,
	})
	require.NoError(t, err)
}

func TestLogin_Success(t *testing.T) {
	store := orm.NewMemoryClient()
	seedUser(t, store, "u1", "a@x.com", "correct")
	svc, tokens := newAuthService(t, store)

	res, err := svc.Login(context.Background(), "a@x.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, "a@x.com", res.Email)
	assert.True(t, res.ExpiresAt.After(time.Now()))

	claims, err := tokens.ParseToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	store := orm.NewMemoryClient()
	seedUser(t, store, "u1", "a@x.com", "correct")
	svc, _ := newAuthService(t, store)

	_, wrongPassword := svc.Login(context.Background(), "a@x.com", "wrong")
	_, unknownUser := svc.Login(context.Background(), "nobody@x.com", "correct")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLogin_EmailIsExactMatch(t *testing.T) {
	store := orm.NewMemoryClient()
	seedUser(t, store, "u1", "a@x.com", "correct")
	svc, _ := newAuthService(t, store)

	_, err := svc.Login(context.Background(), "A@X.COM", "correct")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

type failingStore struct {
	orm.Client
	err error
}

func (f failingStore) FindFirst(context.Context, domain.Model, orm.Where) (domain.Record, error) {
	return nil, f.err
}

func TestLogin_StoreErrorIsNotCredentialError(t *testing.T) {
	cause := errors.New("connection refused")
	svc, _ := newAuthService(t, failingStore{err: cause})

	_, err := svc.Login(context.Background(), "a@x.com", "correct")
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

type countingStore struct {
	orm.Client
	writes int
}

func (c *countingStore) Create(ctx context.Context, m domain.Model, d domain.Record) (domain.Record, error) {
	c.writes++
	return c.Client.Create(ctx, m, d)
}

func (c *countingStore) Update(ctx context.Context, m domain.Model, id string, d domain.Record) (domain.Record, error) {
	c.writes++
	return c.Client.Update(ctx, m, id, d)
}

func (c *countingStore) UpdateIf(ctx context.Context, m domain.Model, id string, g orm.Where, d domain.Record) (domain.Record, error) {
	c.writes++
	return c.Client.UpdateIf(ctx, m, id, g, d)
}

func TestLogin_DoesNotWrite(t *testing.T) {
	mem := orm.NewMemoryClient()
	seedUser(t, mem, "u1", "a@x.com", "correct")
	store := &countingStore{Client: mem}
	svc, _ := newAuthService(t, store)

	_, err := svc.Login(context.Background(), "a@x.com", "correct")
	require.NoError(t, err)
	_, _ = svc.Login(context.Background(), "a@x.com", "wrong")

	assert.Zero(t, store.writes)
}
