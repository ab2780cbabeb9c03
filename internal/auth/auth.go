package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cybersafe-assessment-service/internal/domain"
)

// Verifier checks bearer tokens issued by the portal's auth layer and
// extracts the caller identity. Tokens are HS256-signed with a shared
// secret; issuance itself lives outside this service.
type Verifier struct {
	hmac []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{hmac: []byte(secret)}
}

type claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// Parse validates a raw token and returns the user id from its sub claim.
func (v *Verifier) Parse(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.hmac, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthorized
	}
	c, ok := token.Claims.(*claims)
	if !ok || c.Sub == "" {
		return "", domain.ErrUnauthorized
	}
	return c.Sub, nil
}

// FromRequest resolves the caller from the Authorization header, falling
// back to a token query parameter because browser websocket clients cannot
// set headers.
func (v *Verifier) FromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return v.Parse(strings.TrimPrefix(header, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return v.Parse(token)
	}
	return "", domain.ErrUnauthorized
}

// Issue signs a token for userID. The portal normally does this; the method
// exists for the take command and tests.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Sub: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(v.hmac)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
