package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the identity provider's access-token claims. Subject is the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Identity is the caller resolved from a verified token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// Verifier validates access tokens issued by the external identity provider. Only the algorithm
// matching the configured key is accepted.
type Verifier struct {
	publicKey crypto.PublicKey
	method    jwt.SigningMethod
	issuer    string
	audience  string
	now       func() time.Time
}

// NewVerifier returns a Verifier for tokens signed by the holder of publicKey.
// Empty issuer or audience disables that check. A key SigningMethod does not support rejects
// every token.
func NewVerifier(publicKey crypto.PublicKey, issuer, audience string) *Verifier {
	return &Verifier{
		publicKey: publicKey,
		method:    SigningMethod(publicKey),
		issuer:    issuer,
		audience:  audience,
		now:       time.Now,
	}
}

// NewVerifierFromPEM parses publicKeyPEM (inline PEM or a file path) and returns a Verifier.
func NewVerifierFromPEM(publicKeyPEM, issuer, audience string) (*Verifier, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	return NewVerifier(pub, issuer, audience), nil
}

// Verify parses and validates the token (signature, exp, nbf, iss, aud) and returns the caller identity.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if v.method == nil {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   strings.ToLower(strings.TrimSpace(claims.Role)),
	}, nil
}

// Signer mints tokens in the identity provider's format. Used for local development and tests.
type Signer struct {
	privateKey crypto.Signer
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewSigner returns a Signer that signs with privateKey using its SigningMethod.
func NewSigner(privateKey crypto.Signer, issuer, audience string, ttl time.Duration) *Signer {
	return &Signer{privateKey: privateKey, issuer: issuer, audience: audience, ttl: ttl}
}

// Issue returns a signed token for id and its expiration time.
func (s *Signer) Issue(id Identity) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   id.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: id.Email,
		Role:  id.Role,
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}
	method := SigningMethod(s.privateKey.Public())
	if method == nil {
		return "", time.Time{}, ErrInvalidKey
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString(s.privateKey)
	return token, expiresAt, err
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
