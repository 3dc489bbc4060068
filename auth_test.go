package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testKid = "test-key"

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	mu       sync.Mutex
	requests int
}

func (f *jwksFixture) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"keys":[{"alg":"RS256","kty":"RSA","kid":"` + testKid + `","e":"` +
			base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()) + `","n":"` +
			base64.RawURLEncoding.EncodeToString(key.N.Bytes()) + `"}]}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.RegisteredClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func deliveryClaims(audience string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "events@simplechat.iam.gserviceaccount.com",
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestCacheJWK(t *testing.T) {
	f := newJWKSFixture(t)
	jwtAuth := NewJwtAuth(f.server.URL, "https://relay.example.com")

	require.NoError(t, jwtAuth.CacheJWK())

	keyset, ok := jwtAuth.lookupKey(testKid)
	require.True(t, ok)

	pub, err := convertKey(keyset.E, keyset.N)
	require.NoError(t, err)
	require.Equal(t, f.key.PublicKey.E, pub.E)
	require.Equal(t, 0, f.key.PublicKey.N.Cmp(pub.N))
}

func TestCacheJWKBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	require.Error(t, NewJwtAuth(server.URL, "").CacheJWK())
}

func TestParseJWT(t *testing.T) {
	f := newJWKSFixture(t)
	audience := "https://relay.example.com"
	jwtAuth := NewJwtAuth(f.server.URL, audience)
	require.NoError(t, jwtAuth.CacheJWK())

	token, err := jwtAuth.ParseJWT(f.sign(t, testKid, deliveryClaims(audience)))
	require.NoError(t, err)
	require.True(t, token.Valid)

	sub, err := jwtAuth.sub(token)
	require.NoError(t, err)
	require.Equal(t, "events@simplechat.iam.gserviceaccount.com", sub)
}

func TestParseJWTWrongAudience(t *testing.T) {
	f := newJWKSFixture(t)
	jwtAuth := NewJwtAuth(f.server.URL, "https://relay.example.com")
	require.NoError(t, jwtAuth.CacheJWK())

	_, err := jwtAuth.ParseJWT(f.sign(t, testKid, deliveryClaims("https://other.example.com")))
	require.Error(t, err)
}

func TestParseJWTExpired(t *testing.T) {
	f := newJWKSFixture(t)
	audience := "https://relay.example.com"
	jwtAuth := NewJwtAuth(f.server.URL, audience)
	require.NoError(t, jwtAuth.CacheJWK())

	claims := deliveryClaims(audience)
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err := jwtAuth.ParseJWT(f.sign(t, testKid, claims))
	require.Error(t, err)
}

func TestParseJWTUnknownKidRefreshesOnce(t *testing.T) {
	f := newJWKSFixture(t)
	audience := "https://relay.example.com"
	jwtAuth := NewJwtAuth(f.server.URL, audience)
	require.NoError(t, jwtAuth.CacheJWK())
	require.Equal(t, 1, f.fetches())

	_, err := jwtAuth.ParseJWT(f.sign(t, "rotated-key", deliveryClaims(audience)))
	require.Error(t, err)
	require.Equal(t, 2, f.fetches())
}

func TestParseJWTUnknownKidsRefreshAtMostOncePerInterval(t *testing.T) {
	f := newJWKSFixture(t)
	audience := "https://relay.example.com"
	jwtAuth := NewJwtAuth(f.server.URL, audience)
	require.NoError(t, jwtAuth.CacheJWK())

	forger, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := jwt.NewWithClaims(jwt.SigningMethodRS256, deliveryClaims(audience))
			token.Header["kid"] = fmt.Sprintf("bogus-%d", i)
			signed, err := token.SignedString(forger)
			if err != nil {
				return
			}
			_, _ = jwtAuth.ParseJWT(signed)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 2, f.fetches())

	// Known keys keep verifying while refreshes are throttled.
	_, err = jwtAuth.ParseJWT(f.sign(t, testKid, deliveryClaims(audience)))
	require.NoError(t, err)
	require.Equal(t, 2, f.fetches())
}

func TestConvertKeyRejectsOversizedExponent(t *testing.T) {
	e := base64.RawURLEncoding.EncodeToString([]byte{1, 0, 0, 0, 1})
	n := base64.RawURLEncoding.EncodeToString(big.NewInt(12345).Bytes())

	_, err := convertKey(e, n)
	require.Error(t, err)
}

func TestEventDeliveryAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	f := newJWKSFixture(t)
	audience := "https://relay.example.com"
	jwtAuth := NewJwtAuth(f.server.URL, audience)
	require.NoError(t, jwtAuth.CacheJWK())

	router := gin.New()
	router.POST("/events/test", EventDeliveryAuthMiddleware(jwtAuth, testLogger()), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"valid token", "Bearer " + f.sign(t, testKid, deliveryClaims(audience)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				require.Equal(t, "ok", w.Body.String())
			}
		})
	}
}
