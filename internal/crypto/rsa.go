package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
)

// pkcs1Overhead is the minimum padding PKCS#1 v1.5 adds to a block.
const pkcs1Overhead = 11

// MaxPlaintextSize returns the largest body, in bytes, that fits in one block.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	if pub == nil {
		return 0
	}
	return pub.Size() - pkcs1Overhead
}

// Encrypt seals plaintext for pub and returns base64 ciphertext.
func Encrypt(plaintext string, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", &EncryptionError{Err: ErrNoKey}
	}
	if len(plaintext) > MaxPlaintextSize(pub) {
		return "", &EncryptionError{Err: fmt.Errorf("%w: %d > %d bytes", ErrPlaintextTooLarge, len(plaintext), MaxPlaintextSize(pub))}
	}
	sealed, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(plaintext))
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 ciphertext with priv. Line breaks and other whitespace
// inside the base64 text are ignored.
func Decrypt(ciphertext string, priv *rsa.PrivateKey) (string, error) {
	if priv == nil {
		return "", &DecryptionError{Err: ErrNoKey}
	}
	raw, err := decodeBase64(ciphertext)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("decode base64: %w", err)}
	}
	if len(raw) == 0 {
		return "", &DecryptionError{Err: fmt.Errorf("empty ciphertext")}
	}
	plain, err := rsa.DecryptPKCS1v15(nil, priv, raw)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return string(plain), nil
}

func decodeBase64(s string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(compact)
}
