package signing

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer produces a base64 signature over a message.
type Signer interface {
	Sign(message string) (string, error)
}

// Verifier checks a base64 signature over a message.
type Verifier interface {
	Verify(message, signature string) error
}

// RSASigner signs with SHA-256 and RSA PKCS#1 v1.5. Every call is an
// independent signing operation.
type RSASigner struct {
	key *rsa.PrivateKey
}

func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

func (s *RSASigner) Sign(message string) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(message, s.key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// RSAVerifier is the counterpart of RSASigner.
type RSAVerifier struct {
	key *rsa.PublicKey
}

func NewRSAVerifier(key *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{key: key}
}

func (v *RSAVerifier) Verify(message, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	return jwt.SigningMethodRS256.Verify(message, sig, v.key)
}
