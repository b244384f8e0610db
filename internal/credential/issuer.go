package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/quartzlab/emqx-bridge/internal/identity"
)

// ErrInvalidCredential covers every refresh failure: bad signature,
// expired token, wrong token type, unknown or inactive subject. Callers
// get one error so responses do not leak which check failed.
var ErrInvalidCredential = errors.New("invalid credential")

// BackendUsername is the MQTT username the bridge connects as.
const BackendUsername = "backend"

// UserResolver looks up the account behind a refresh token's subject.
// Refreshing re-resolves the user so a deactivated account stops
// getting new access tokens even though refresh tokens are stateless.
type UserResolver interface {
	GetByID(ctx context.Context, id string) (*identity.User, error)
}

// Pair is an access/refresh token pair issued to a user.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Issuer mints broker credentials signed with the shared JWT secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	users      UserResolver
}

// NewIssuer creates a credential issuer. TTLs are in minutes.
func NewIssuer(secret string, accessTTLMinutes, refreshTTLMinutes int, users UserResolver) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  time.Duration(accessTTLMinutes) * time.Minute,
		refreshTTL: time.Duration(refreshTTLMinutes) * time.Minute,
		users:      users,
	}
}

// IssueBackendCredential mints the token the bridge itself uses as its
// MQTT password. It carries the wildcard ACL and the backend username.
func (i *Issuer) IssueBackendCredential() (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(identity.BackendUserID, i.accessTTL),
		Username:         BackendUsername,
		TokenType:        TokenTypeAccess,
		ACL:              backendACL(),
	})
}

// IssueUserCredential mints an access/refresh pair for a user. The
// access token is what the user's device presents as its MQTT password;
// its ACL confines it to the user's own topic namespace.
func (i *Issuer) IssueUserCredential(user *identity.User) (*Pair, error) {
	access, err := i.issueUserAccess(user)
	if err != nil {
		return nil, err
	}

	// Refresh tokens carry no ACL; they are only good for minting a
	// fresh access token through the bridge, never for broker
	// authentication.
	refresh, err := i.sign(Claims{
		RegisteredClaims: i.registered(user.ID, i.refreshTTL),
		Username:         user.ID,
		TokenType:        TokenTypeRefresh,
	})
	if err != nil {
		return nil, err
	}

	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// issueUserAccess mints a user's broker access token. The username
// claim carries the user ID, not the display name: EMQX templates the
// claim into webhook bodies as user_id, and the reconciler resolves
// that value by ID.
func (i *Issuer) issueUserAccess(user *identity.User) (string, error) {
	return i.sign(Claims{
		RegisteredClaims: i.registered(user.ID, i.accessTTL),
		Username:         user.ID,
		TokenType:        TokenTypeAccess,
		ACL:              userACL(user.ID),
	})
}

// RefreshAccessToken validates a refresh token and mints a new access
// token for its subject. The refresh token itself is not rotated; it
// stays valid until its own expiry.
func (i *Issuer) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := i.parse(refreshToken)
	if err != nil {
		return "", err
	}

	if claims.TokenType != TokenTypeRefresh {
		return "", fmt.Errorf("%w: not a refresh token", ErrInvalidCredential)
	}

	user, err := i.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: unknown subject", ErrInvalidCredential)
	}
	if !user.IsActive {
		return "", fmt.Errorf("%w: account disabled", ErrInvalidCredential)
	}

	return i.issueUserAccess(user)
}

// ParseAccessToken validates a bearer token presented to the HTTP API
// and returns its claims. Refresh tokens are rejected here.
func (i *Issuer) ParseAccessToken(tokenString string) (*Claims, error) {
	claims, err := i.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidCredential)
	}
	return claims, nil
}

func (i *Issuer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
}

func (i *Issuer) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing credential: %w", err)
	}
	return signed, nil
}

func (i *Issuer) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredential
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}

	return claims, nil
}
