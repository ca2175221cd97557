package authx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const (
	testIssuer   = "https://issuer.test"
	testAudience = "qc-api"
	testKID      = "test-key-1"
)

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func newJWKSServer(t *testing.T, priv *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	key, err := jwk.FromRaw(priv.Public())
	if err != nil {
		t.Fatalf("build jwk: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, testKID); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		t.Fatalf("add key: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, priv *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "worker-7",
		"email": "worker7@example.com",
		"name":  "Worker Seven",
		"exp":   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func newVerifier(t *testing.T, jwksURL string) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier(testIssuer, testAudience, jwksURL, 300, 0)
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	return v
}

func TestVerifyExtractsIdentity(t *testing.T) {
	priv := newSigningKey(t)
	srv := newJWKSServer(t, priv)
	v := newVerifier(t, srv.URL)

	auth, err := v.Verify(context.Background(), signToken(t, priv, testKID, baseClaims()))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if auth.Subject != "worker-7" {
		t.Errorf("Subject = %q, want worker-7", auth.Subject)
	}
	if auth.Email != "worker7@example.com" {
		t.Errorf("Email = %q, want worker7@example.com", auth.Email)
	}
	if auth.Name != "Worker Seven" {
		t.Errorf("Name = %q, want Worker Seven", auth.Name)
	}
}

func TestVerifyRejections(t *testing.T) {
	priv := newSigningKey(t)
	srv := newJWKSServer(t, priv)
	v := newVerifier(t, srv.URL)

	expired := baseClaims()
	expired["exp"] = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	wrongAud := baseClaims()
	wrongAud["aud"] = "someone-else"

	noSubject := baseClaims()
	delete(noSubject, "sub")

	noExpiry := baseClaims()
	delete(noExpiry, "exp")

	hsToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, baseClaims()).SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("sign HS256 token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage token", "not.a.jwt"},
		{"expired", signToken(t, priv, testKID, expired)},
		{"wrong audience", signToken(t, priv, testKID, wrongAud)},
		{"missing subject", signToken(t, priv, testKID, noSubject)},
		{"missing expiry", signToken(t, priv, testKID, noExpiry)},
		{"unknown kid", signToken(t, priv, "rotated-away", baseClaims())},
		{"symmetric alg", hsToken},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tc.token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestNewJWTVerifierValidation(t *testing.T) {
	if _, err := NewJWTVerifier("", testAudience, "", 60, 0); err == nil {
		t.Fatalf("expected error for missing issuer")
	}
	if _, err := NewJWTVerifier(testIssuer, "", "", 60, 0); err == nil {
		t.Fatalf("expected error for missing audience")
	}
}

func TestAuthContextRoundTrip(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Subject: "admin-1"})
	auth, ok := FromContext(ctx)
	if !ok || auth.Subject != "admin-1" {
		t.Fatalf("FromContext = (%v, %v), want subject admin-1", auth, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected miss on empty context")
	}
}
