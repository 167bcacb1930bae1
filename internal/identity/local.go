package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/rohanthewiz/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenIssuer = "canvass"
	defaultTTL  = 30 * 24 * time.Hour
	resetTTL    = time.Hour
)

// PrefJWTSecret holds the generated signing key when none is configured.
const PrefJWTSecret = "identity_jwt_secret"

// AccountStore persists accounts and the session token. *canvass.Store implements it.
type AccountStore interface {
	PutAccount(acct canvass.Account) error
	GetAccount(id string) (*canvass.Account, error)
	GetAccountByEmail(email string) (*canvass.Account, error)
	DeleteAccount(id string) error
	GetPreference(key string) (string, error)
	SetPreference(key, value string) error
	DeletePreference(key string) error
}

// ResetSender delivers password reset tokens out of band.
type ResetSender func(email, token string)

// LocalProvider implements Provider against an AccountStore.
type LocalProvider struct {
	store      AccountStore
	secret     []byte
	bcryptCost int
	ttl        time.Duration
	sendReset  ResetSender
	now        func() time.Time

	mu      sync.RWMutex
	current *User
	subs    map[int]chan Event
	nextSub int
}

// Option configures a LocalProvider.
type Option func(*LocalProvider)

// WithSecret sets the token signing key. Without it a key is generated once
// and kept in the store.
func WithSecret(secret string) Option {
	return func(p *LocalProvider) {
		if secret != "" {
			p.secret = []byte(secret)
		}
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(p *LocalProvider) { p.bcryptCost = cost }
}

// WithTokenTTL sets how long a session token stays valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *LocalProvider) { p.ttl = ttl }
}

// WithResetSender sets where reset tokens go. The default logs that one was issued.
func WithResetSender(fn ResetSender) Option {
	return func(p *LocalProvider) { p.sendReset = fn }
}

// NewLocalProvider creates a provider. Call Restore to resume a saved session.
func NewLocalProvider(store AccountStore, opts ...Option) (*LocalProvider, error) {
	p := &LocalProvider{
		store:      store,
		bcryptCost: bcrypt.DefaultCost,
		ttl:        defaultTTL,
		now:        time.Now,
		subs:       make(map[int]chan Event),
		sendReset: func(email, _ string) {
			logger.Info("password reset issued", "email", email)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if len(p.secret) == 0 {
		secret, err := loadOrCreateSecret(store)
		if err != nil {
			return nil, err
		}
		p.secret = secret
	}
	return p, nil
}

func loadOrCreateSecret(store AccountStore) ([]byte, error) {
	existing, err := store.GetPreference(PrefJWTSecret)
	if err != nil {
		return nil, fmt.Errorf("identity: load secret: %w", err)
	}
	if existing != "" {
		return []byte(existing), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("identity: generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := store.SetPreference(PrefJWTSecret, secret); err != nil {
		return nil, fmt.Errorf("identity: save secret: %w", err)
	}
	return []byte(secret), nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (p *LocalProvider) issueToken(acct *canvass.Account) (string, error) {
	now := p.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   acct.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Email: acct.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

func (p *LocalProvider) parseToken(tokenString string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(p.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Restore resumes the session saved by a previous SignIn. An expired or
// tampered token is discarded. Returns the user or nil.
func (p *LocalProvider) Restore(ctx context.Context) (*User, error) {
	tokenString, err := p.store.GetPreference(canvass.PrefSessionToken)
	if err != nil {
		return nil, canvass.E(canvass.KindData, "restore", err)
	}
	if tokenString == "" {
		return nil, nil
	}

	claims, err := p.parseToken(tokenString)
	if err != nil {
		logger.Debug("discarding saved session", "reason", err.Error())
		_ = p.store.DeletePreference(canvass.PrefSessionToken)
		return nil, nil
	}

	acct, err := p.store.GetAccount(claims.Subject)
	if errors.Is(err, canvass.ErrNotFound) {
		_ = p.store.DeletePreference(canvass.PrefSessionToken)
		return nil, nil
	}
	if err != nil {
		return nil, canvass.E(canvass.KindData, "restore", err)
	}

	user := userFrom(acct)
	p.setCurrent(user)
	p.publish(Event{Kind: EventSignedIn, User: user})
	return user, nil
}

// SignUp implements Provider.
func (p *LocalProvider) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, canvass.E(canvass.KindNetwork, "sign_up", err)
	}

	if _, err := p.store.GetAccountByEmail(email); err == nil {
		return nil, canvass.E(canvass.KindValidation, "sign_up", canvass.ErrAccountExists)
	} else if !errors.Is(err, canvass.ErrNotFound) {
		return nil, canvass.E(canvass.KindData, "sign_up", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}

	acct := canvass.Account{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.PutAccount(acct); err != nil {
		return nil, canvass.E(canvass.KindData, "sign_up", err)
	}

	return p.startSession(&acct, "sign_up")
}

// SignIn implements Provider.
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, &canvass.ValidationError{Field: "Password", Message: "password is required"}
	}
	if err := ctx.Err(); err != nil {
		return nil, canvass.E(canvass.KindNetwork, "sign_in", err)
	}

	acct, err := p.store.GetAccountByEmail(email)
	if errors.Is(err, canvass.ErrNotFound) {
		return nil, canvass.E(canvass.KindAuthentication, "sign_in", canvass.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, canvass.E(canvass.KindData, "sign_in", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, canvass.E(canvass.KindAuthentication, "sign_in", canvass.ErrInvalidCredentials)
	}

	return p.startSession(acct, "sign_in")
}

func (p *LocalProvider) startSession(acct *canvass.Account, op string) (*User, error) {
	token, err := p.issueToken(acct)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetPreference(canvass.PrefSessionToken, token); err != nil {
		return nil, canvass.E(canvass.KindData, op, err)
	}
	user := userFrom(acct)
	p.setCurrent(user)
	p.publish(Event{Kind: EventSignedIn, User: user})
	return user, nil
}

// SignOut implements Provider. Signing out without a session is a no-op.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	user := p.current
	p.current = nil
	p.mu.Unlock()

	if err := p.store.DeletePreference(canvass.PrefSessionToken); err != nil {
		return canvass.E(canvass.KindData, "sign_out", err)
	}
	if user != nil {
		p.publish(Event{Kind: EventSignedOut, User: user})
	}
	return nil
}

// DeleteAccount implements Provider. It removes the signed-in account.
func (p *LocalProvider) DeleteAccount(ctx context.Context) error {
	user := p.CurrentUser()
	if user == nil {
		return canvass.E(canvass.KindAuthentication, "delete_account", canvass.ErrNoSession)
	}
	if err := p.store.DeleteAccount(user.UID); err != nil && !errors.Is(err, canvass.ErrNotFound) {
		return canvass.E(canvass.KindData, "delete_account", err)
	}
	_ = p.store.DeletePreference(canvass.PrefSessionToken)

	p.setCurrent(nil)
	p.publish(Event{Kind: EventAccountDeleted, User: user})
	return nil
}

// ResetPassword implements Provider. Unknown emails succeed silently.
func (p *LocalProvider) ResetPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := ValidateEmail(email); err != nil {
		return err
	}
	acct, err := p.store.GetAccountByEmail(email)
	if errors.Is(err, canvass.ErrNotFound) {
		return nil
	}
	if err != nil {
		return canvass.E(canvass.KindData, "reset_password", err)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("identity: generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expires := p.now().Add(resetTTL)
	acct.ResetToken = token
	acct.ResetExpiresAt = &expires
	if err := p.store.PutAccount(*acct); err != nil {
		return canvass.E(canvass.KindData, "reset_password", err)
	}

	p.sendReset(email, token)
	return nil
}

// ConfirmPasswordReset sets a new password using a token from ResetPassword.
func (p *LocalProvider) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	acct, err := p.store.GetAccountByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return canvass.E(canvass.KindAuthentication, "confirm_reset", errors.New("invalid reset token"))
	}
	if acct.ResetToken == "" || acct.ResetToken != token || acct.ResetExpiresAt == nil || p.now().After(*acct.ResetExpiresAt) {
		return canvass.E(canvass.KindAuthentication, "confirm_reset", errors.New("invalid reset token"))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.bcryptCost)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	acct.PasswordHash = string(hash)
	acct.ResetToken = ""
	acct.ResetExpiresAt = nil
	if err := p.store.PutAccount(*acct); err != nil {
		return canvass.E(canvass.KindData, "confirm_reset", err)
	}
	return nil
}

// CurrentUser implements Provider.
func (p *LocalProvider) CurrentUser() *User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	u := *p.current
	return &u
}

// IsAuthenticated implements Provider.
func (p *LocalProvider) IsAuthenticated() bool {
	return p.CurrentUser() != nil
}

// Subscribe implements Provider. Slow subscribers miss events rather than block.
func (p *LocalProvider) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *LocalProvider) setCurrent(u *User) {
	p.mu.Lock()
	p.current = u
	p.mu.Unlock()
}

func (p *LocalProvider) publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func userFrom(acct *canvass.Account) *User {
	return &User{UID: acct.ID, Email: acct.Email, DisplayName: acct.DisplayName}
}
