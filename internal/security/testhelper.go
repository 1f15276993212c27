package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"time"
)

// Issuer and audience of tokens minted by TestKeys.
const (
	TestIssuer   = "test-issuer"
	TestAudience = "test-audience"
)

// TestKeys is a throwaway ECDSA P-256 key pair for unit tests. Not for production use.
type TestKeys struct {
	PrivatePEM string
	PublicPEM  string
}

// NewTestKeys generates a fresh key pair encoded as PKCS #8 and PKIX PEM.
func NewTestKeys() (*TestKeys, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &TestKeys{
		PrivatePEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv})),
		PublicPEM:  string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})),
	}, nil
}

// Signer returns a Signer for TestIssuer and TestAudience with the given token lifetime.
func (k *TestKeys) Signer(ttl time.Duration) (*Signer, error) {
	key, err := ParsePrivateKey(k.PrivatePEM)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, TestIssuer, TestAudience, ttl), nil
}

// Verifier returns a Verifier that accepts tokens from Signer.
func (k *TestKeys) Verifier() (*Verifier, error) {
	return NewVerifierFromPEM(k.PublicPEM, TestIssuer, TestAudience)
}
