package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// KeyProvider supplies the keypair used by the Channel. Implementations may
// block on first use.
type KeyProvider interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
	PrivateKey(ctx context.Context) (*rsa.PrivateKey, error)
}

// Material is raw key material: PEM, or bare base64 DER (X.509
// SubjectPublicKeyInfo or PKCS#1 for the public half, PKCS#8 or PKCS#1 for
// the private half).
type Material struct {
	Public  []byte
	Private []byte
}

// MaterialLoader fetches key material when the provider first needs it.
type MaterialLoader func(ctx context.Context) (Material, error)

// InlineMaterial returns a loader for material held in configuration.
func InlineMaterial(public, private string) MaterialLoader {
	return func(context.Context) (Material, error) {
		if strings.TrimSpace(public) == "" || strings.TrimSpace(private) == "" {
			return Material{}, ErrNoKeyMaterial
		}
		return Material{Public: []byte(public), Private: []byte(private)}, nil
	}
}

// FileMaterial returns a loader reading both halves from disk.
func FileMaterial(publicPath, privatePath string) MaterialLoader {
	return func(context.Context) (Material, error) {
		if publicPath == "" || privatePath == "" {
			return Material{}, ErrNoKeyMaterial
		}
		pub, err := os.ReadFile(publicPath)
		if err != nil {
			return Material{}, fmt.Errorf("read public key: %w", err)
		}
		priv, err := os.ReadFile(privatePath)
		if err != nil {
			return Material{}, fmt.Errorf("read private key: %w", err)
		}
		return Material{Public: pub, Private: priv}, nil
	}
}

// StaticKeyProvider materializes one keypair lazily and serves it for the
// lifetime of the process. Parse failures are sticky; context cancellation
// during loading is not.
type StaticKeyProvider struct {
	load MaterialLoader

	mu     sync.Mutex
	loaded bool
	pub    *rsa.PublicKey
	priv   *rsa.PrivateKey
	err    error
}

// NewStaticKeyProvider creates a provider backed by load.
func NewStaticKeyProvider(load MaterialLoader) *StaticKeyProvider {
	return &StaticKeyProvider{load: load}
}

// NewKeyPairProvider serves an already parsed keypair.
func NewKeyPairProvider(priv *rsa.PrivateKey) *StaticKeyProvider {
	return &StaticKeyProvider{loaded: true, pub: &priv.PublicKey, priv: priv}
}

// PublicKey returns the public half, loading material on first use.
func (p *StaticKeyProvider) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}
	return p.pub, nil
}

// PrivateKey returns the private half, loading material on first use.
func (p *StaticKeyProvider) PrivateKey(ctx context.Context) (*rsa.PrivateKey, error) {
	if err := p.ensure(ctx); err != nil {
		return nil, err
	}
	return p.priv, nil
}

func (p *StaticKeyProvider) ensure(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return p.err
	}
	if p.load == nil {
		p.loaded, p.err = true, ErrNoKeyMaterial
		return p.err
	}

	material, err := p.load(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		p.loaded, p.err = true, err
		return err
	}

	p.pub, p.priv, p.err = parseMaterial(material)
	p.loaded = true
	return p.err
}

func parseMaterial(material Material) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	pub, err := ParsePublicKey(material.Public)
	if err != nil {
		return nil, nil, fmt.Errorf("parse public key: %w", err)
	}
	priv, err := ParsePrivateKey(material.Private)
	if err != nil {
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}
	if !priv.PublicKey.Equal(pub) {
		return nil, nil, ErrKeyMismatch
	}
	return pub, priv, nil
}

// ParsePublicKey accepts PEM ("PUBLIC KEY" or "RSA PUBLIC KEY") or bare
// base64 DER.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	der, pemType, err := derBytes(data)
	if err != nil {
		return nil, err
	}
	if pemType == "RSA PUBLIC KEY" {
		return x509.ParsePKCS1PublicKey(der)
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PublicKey(der)
}

// ParsePrivateKey accepts PEM ("PRIVATE KEY" or "RSA PRIVATE KEY") or bare
// base64 DER in either PKCS#8 or PKCS#1 layout.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	der, pemType, err := derBytes(data)
	if err != nil {
		return nil, err
	}
	if pemType == "RSA PRIVATE KEY" {
		return x509.ParsePKCS1PrivateKey(der)
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(der)
}

func derBytes(data []byte) ([]byte, string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, "", ErrNoKeyMaterial
	}
	if block, _ := pem.Decode([]byte(trimmed)); block != nil {
		return block.Bytes, block.Type, nil
	}
	der, err := decodeBase64(trimmed)
	if err != nil {
		return nil, "", fmt.Errorf("decode base64: %w", err)
	}
	return der, "", nil
}

// GenerateKeyPair creates a fresh RSA keypair.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// EncodePEM returns the public half as "PUBLIC KEY" and the private half as
// "PRIVATE KEY" PEM blocks.
func EncodePEM(priv *rsa.PrivateKey) (public, private []byte, err error) {
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	public = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	private = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	return public, private, nil
}
