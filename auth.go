package main

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// jwksRefreshInterval bounds how often an unknown kid may trigger a refetch.
const jwksRefreshInterval = time.Minute

var errRefreshThrottled = errors.New("jwks refresh throttled")

// IDTokenVerifier verifies Firebase ID tokens sent by callable clients.
// *auth.Client satisfies it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// JwtAuth verifies the OIDC bearer tokens attached to event deliveries
// against a cached JWK set.
type JwtAuth struct {
	mu         sync.RWMutex
	jwk        *JWK
	jwkURL     string
	audience   string
	httpClient *http.Client

	refreshMu      sync.Mutex
	refreshLimiter *rate.Limiter
}

type KeySet struct {
	Alg string `json:"alg"`
	E   string `json:"e"`
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
}

type JWK struct {
	Keys []KeySet `json:"keys"`
}

// MapKeys indexes each KeySet against its KID
func (jwk *JWK) MapKeys() map[string]KeySet {
	keymap := make(map[string]KeySet)
	for _, keys := range jwk.Keys {
		keymap[keys.Kid] = keys
	}
	return keymap
}

func NewJwtAuth(jwkURL string, audience string) *JwtAuth {
	return &JwtAuth{
		jwkURL:     jwkURL,
		audience:   audience,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		refreshLimiter: rate.NewLimiter(rate.Every(jwksRefreshInterval), 1),
	}
}

// CacheJWK fetches the key set and replaces the cached one.
func (a *JwtAuth) CacheJWK() error {
	req, err := http.NewRequest(http.MethodGet, a.jwkURL, nil)
	if err != nil {
		return err
	}
	req.Header.Add("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	jwk := new(JWK)
	if err := json.Unmarshal(body, jwk); err != nil {
		return err
	}

	a.mu.Lock()
	a.jwk = jwk
	a.mu.Unlock()
	return nil
}

func (a *JwtAuth) lookupKey(kid string) (KeySet, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.jwk == nil {
		return KeySet{}, false
	}
	keyset, ok := a.jwk.MapKeys()[kid]
	return keyset, ok
}

func (a *JwtAuth) keyFunc(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, errors.New("getting kid; not a string")
	}

	keyset, ok := a.lookupKey(kid)
	if !ok {
		if err := a.refreshJWK(); err != nil && !errors.Is(err, errRefreshThrottled) {
			return nil, fmt.Errorf("refreshing jwks: %w", err)
		}
		if keyset, ok = a.lookupKey(kid); !ok {
			return nil, fmt.Errorf("keyset not found for kid %s", kid)
		}
	}

	return convertKey(keyset.E, keyset.N)
}

// refreshJWK refetches the key set at most once per jwksRefreshInterval.
// Concurrent callers wait for the fetch in flight and then see the result
// through lookupKey.
func (a *JwtAuth) refreshJWK() error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	if !a.refreshLimiter.Allow() {
		return errRefreshThrottled
	}
	return a.CacheJWK()
}

func (a *JwtAuth) ParseJWT(tokenString string) (*jwt.Token, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, a.keyFunc, opts...)
	if err != nil {
		return token, fmt.Errorf("parsing jwt; %w", err)
	}

	return token, nil
}

func (a *JwtAuth) sub(token *jwt.Token) (string, error) {
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", errors.New("there is problem to get claims")
	}

	return claims.Subject, nil
}

func convertKey(rawE, rawN string) (*rsa.PublicKey, error) {
	decodedE, err := base64.RawURLEncoding.DecodeString(rawE)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}
	if len(decodedE) > 4 {
		return nil, fmt.Errorf("exponent is %d bytes, want at most 4", len(decodedE))
	}
	if len(decodedE) < 4 {
		ndata := make([]byte, 4)
		copy(ndata[4-len(decodedE):], decodedE)
		decodedE = ndata
	}

	decodedN, err := base64.RawURLEncoding.DecodeString(rawN)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(decodedN),
		E: int(binary.BigEndian.Uint32(decodedE)),
	}, nil
}
