// Package signing holds the RSA key handling and the per-entry signature
// strategies used by the manifest integrity checks.
package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const KeyBits = 2048

var ErrNotRSAKey = errors.New("key is not an RSA key")

// ParsePublicKey decodes a base64 PKIX DER public key.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: %w", ErrNotRSAKey)
	}
	return pub, nil
}

// ParsePrivateKey decodes a base64 PKCS#8 DER private key.
func ParsePrivateKey(encoded string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: %w", ErrNotRSAKey)
	}
	return priv, nil
}

// KeyPair is a base64 DER encoded RSA key pair.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

func GenerateKeyPair() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate rsa key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("marshal public key: %w", err)
	}
	return KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pubDER),
		PrivateKey: base64.StdEncoding.EncodeToString(privDER),
	}, nil
}

// WriteFiles stores the pair as <dir>/<name>_public_key.txt and
// <dir>/<name>_private_key.txt and returns both paths.
func (k KeyPair) WriteFiles(dir, name string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create key directory: %w", err)
	}
	pubPath := filepath.Join(dir, name+"_public_key.txt")
	privPath := filepath.Join(dir, name+"_private_key.txt")
	if err := os.WriteFile(pubPath, []byte(k.PublicKey), 0o644); err != nil {
		return "", "", fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(k.PrivateKey), 0o600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}
	return pubPath, privPath, nil
}

func LoadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}
	return ParsePublicKey(string(data))
}

func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	return ParsePrivateKey(string(data))
}
