package stubserver

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/marketplace-client/internal/domain/auth"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errUserExists         = errors.New("user already exists")
	errInvalidToken       = errors.New("invalid token")
)

// SeedUser is an account created when the server starts.
type SeedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type account struct {
	user auth.User
	hash []byte
}

// accounts stores users by normalized email and id.
type accounts struct {
	cost int

	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
}

func newAccounts(cost int) *accounts {
	return &accounts{
		cost:    cost,
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
	}
}

// seed hashes passwords concurrently, hashing dominates start time.
func (a *accounts) seed(ctx context.Context, users []SeedUser) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, u := range users {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := a.register(u.Name, u.Email, u.Password); err != nil {
				return errors.Wrapf(err, "seed %q", u.Email)
			}
			return nil
		})
	}
	return g.Wait()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *accounts) register(name, email, password string) (auth.User, error) {
	key := normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return auth.User{}, errors.Wrap(err, "hash password")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[key]; ok {
		return auth.User{}, errUserExists
	}
	acc := &account{
		user: auth.User{ID: uuid.NewString(), Email: key, Name: strings.TrimSpace(name)},
		hash: hash,
	}
	a.byEmail[key] = acc
	a.byID[acc.user.ID] = acc
	return acc.user, nil
}

func (a *accounts) authenticate(email, password string) (auth.User, error) {
	a.mu.RLock()
	acc, ok := a.byEmail[normalizeEmail(email)]
	a.mu.RUnlock()
	if !ok {
		return auth.User{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return auth.User{}, errInvalidCredentials
	}
	return acc.user, nil
}

func (a *accounts) byUserID(id string) (auth.User, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.byID[id]
	if !ok {
		return auth.User{}, false
	}
	return acc.user, true
}

// tokens issues and verifies HS256 session tokens whose subject is the
// user id.
type tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (t tokens) issue(u auth.User) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

func (t tokens) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.Errorf("%w: %v", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}
