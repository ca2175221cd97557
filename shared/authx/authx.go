package authx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUnknownKID   = errors.New("unknown kid")
)

// AuthContext carries the verified token identity. Authorization decisions
// are not made from claims; the user row resolved from Subject is the
// authority for role and active status.
type AuthContext struct {
	Subject string
	Email   string
	Name    string
	Claims  map[string]any
}

type contextKey struct{}

func WithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, auth)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	a, ok := ctx.Value(contextKey{}).(AuthContext)
	return a, ok
}

// JWTVerifier validates bearer tokens against a remote JWKS endpoint.
// Only asymmetric signatures are accepted; shared-secret tokens have no
// place in service-to-service auth here.
type JWTVerifier struct {
	parser *jwt.Parser
	keys   *jwksCache
}

var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

func NewJWTVerifier(issuer, audience, jwksURL string, ttlSeconds, clockSkewSeconds int) (*JWTVerifier, error) {
	issuer = strings.TrimSpace(issuer)
	audience = strings.TrimSpace(audience)
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("%w: missing issuer or audience", ErrInvalidToken)
	}
	if strings.TrimSpace(jwksURL) == "" {
		jwksURL = strings.TrimRight(issuer, "/") + "/.well-known/jwks.json"
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	skew := time.Duration(clockSkewSeconds) * time.Second
	if skew < 0 {
		skew = 0
	}

	return &JWTVerifier{
		parser: jwt.NewParser(
			jwt.WithValidMethods(signingMethods),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(skew),
		),
		keys: newJWKSCache(jwksURL, ttl),
	}, nil
}

func (v *JWTVerifier) Verify(ctx context.Context, rawToken string) (AuthContext, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return AuthContext{}, ErrInvalidToken
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(rawToken, claims, v.resolveKey(ctx)); err != nil {
		return AuthContext{}, ErrInvalidToken
	}

	subject := claimString(claims, "sub")
	if subject == "" {
		return AuthContext{}, ErrInvalidToken
	}
	name := claimString(claims, "name")
	if name == "" {
		name = claimString(claims, "preferred_username")
	}
	return AuthContext{
		Subject: subject,
		Email:   claimString(claims, "email"),
		Name:    name,
		Claims:  map[string]any(claims),
	}, nil
}

func (v *JWTVerifier) resolveKey(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid = strings.TrimSpace(kid); kid == "" {
			return nil, ErrUnknownKID
		}
		return v.keys.lookup(ctx, kid)
	}
}

func claimString(claims jwt.MapClaims, name string) string {
	v, ok := claims[name]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// jwksCache holds the raw public keys of a JWKS endpoint for a TTL. A lookup
// miss or an expired set triggers a refetch; when the endpoint is down the
// previous set keeps serving until it expires.
type jwksCache struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu      sync.Mutex
	byKID   map[string]any
	staleAt time.Time
}

func newJWKSCache(url string, ttl time.Duration) *jwksCache {
	return &jwksCache{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 5 * time.Second},
		byKID:  map[string]any{},
	}
}

func (c *jwksCache) lookup(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if key, ok := c.byKID[kid]; ok && now.Before(c.staleAt) {
		return key, nil
	}

	if err := c.refetch(ctx); err != nil {
		if key, ok := c.byKID[kid]; ok && now.Before(c.staleAt) {
			return key, nil
		}
		return nil, err
	}
	key, ok := c.byKID[kid]
	if !ok {
		return nil, ErrUnknownKID
	}
	return key, nil
}

// refetch replaces the key set; caller holds the lock.
func (c *jwksCache) refetch(ctx context.Context) error {
	set, err := jwk.Fetch(ctx, c.url, jwk.WithHTTPClient(c.client))
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}

	next := make(map[string]any, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid := strings.TrimSpace(key.KeyID())
		if kid == "" {
			continue
		}
		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		next[kid] = raw
	}
	if len(next) == 0 {
		return errors.New("jwks fetch: no usable keys")
	}

	c.byKID = next
	c.staleAt = time.Now().Add(c.ttl)
	return nil
}
