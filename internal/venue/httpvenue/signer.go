package httpvenue

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
)

// Signer produces the auth headers for a request, given the timestamp
// (epoch-ms) at which it's being sent, the HTTP method, and the request
// path (not including query string). Different venues use different
// schemes, so httpvenue depends only on this capability rather than one
// fixed signing algorithm.
type Signer interface {
	Sign(timestampMs int64, method, path string) (headers map[string]string, err error)
}

// RSAPSSSigner implements the timestamp+method+path RSA-PSS/SHA-256 scheme
// the teacher's internal/auth.Credentials used for Kalshi. Generalized here
// to accept arbitrary header names so other venues using the same scheme
// under different header conventions can reuse it.
type RSAPSSSigner struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	KeyHeader  string
	TimeHeader string
	SigHeader  string
}

// NewRSAPSSSigner returns a signer using Kalshi-style header names; override
// via the exported fields if a venue names its headers differently.
func NewRSAPSSSigner(keyID string, privateKey *rsa.PrivateKey) *RSAPSSSigner {
	return &RSAPSSSigner{
		KeyID:      keyID,
		PrivateKey: privateKey,
		KeyHeader:  "ACCESS-KEY",
		TimeHeader: "ACCESS-TIMESTAMP",
		SigHeader:  "ACCESS-SIGNATURE",
	}
}

// Sign implements Signer.
func (s *RSAPSSSigner) Sign(timestampMs int64, method, path string) (map[string]string, error) {
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(
		rand.Reader,
		s.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: sign message: %w", err)
	}

	return map[string]string{
		s.KeyHeader:  s.KeyID,
		s.TimeHeader: fmt.Sprintf("%d", timestampMs),
		s.SigHeader:  base64.StdEncoding.EncodeToString(signature),
	}, nil
}

// LoadRSAPrivateKey reads a PEM-encoded RSA private key, trying PKCS#8 then
// falling back to PKCS#1 — the same two formats the teacher's
// auth.LoadPrivateKey accepted.
func LoadRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("httpvenue: failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("httpvenue: key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("httpvenue: parse private key: %w", err)
	}
	return rsaKey, nil
}
