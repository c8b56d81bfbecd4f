package crypto

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKeyVal  *rsa.PrivateKey
	testKeyErr  error
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKeyVal, testKeyErr = GenerateKeyPair(2048)
	})
	require.NoError(t, testKeyErr)
	return testKeyVal
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)

	inputs := []string{
		"hello",
		"",
		"ünïcödé ✓ 你好",
		strings.Repeat("x", MaxPlaintextSize(&key.PublicKey)),
	}
	for _, plaintext := range inputs {
		ciphertext, err := Encrypt(plaintext, &key.PublicKey)
		require.NoError(t, err)
		require.NotEqual(t, plaintext, ciphertext)

		decrypted, err := Decrypt(ciphertext, key)
		require.NoError(t, err)
		require.Equal(t, plaintext, decrypted)
	}
}

func TestEncryptRejectsOversizedPlaintext(t *testing.T) {
	key := testKey(t)
	limit := MaxPlaintextSize(&key.PublicKey)
	require.Equal(t, 256-11, limit)

	_, err := Encrypt(strings.Repeat("x", limit+1), &key.PublicKey)
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
	require.ErrorIs(t, err, ErrPlaintextTooLarge)
}

func TestEncryptNilKey(t *testing.T) {
	_, err := Encrypt("x", nil)
	require.ErrorIs(t, err, ErrNoKey)
}

func TestDecryptGarbageNeverPanics(t *testing.T) {
	key := testKey(t)
	inputs := []string{
		"",
		"not base64 !!!",
		base64.StdEncoding.EncodeToString([]byte("short")),
		base64.StdEncoding.EncodeToString(make([]byte, 256)),
	}
	for _, input := range inputs {
		_, err := Decrypt(input, key)
		var decErr *DecryptionError
		require.ErrorAs(t, err, &decErr, "input %q", input)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := testKey(t)
	other, err := GenerateKeyPair(1024)
	require.NoError(t, err)

	ciphertext, err := Encrypt("secret", &key.PublicKey)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, other)
	var decErr *DecryptionError
	require.ErrorAs(t, err, &decErr)
}

func TestDecryptToleratesLineBreaks(t *testing.T) {
	key := testKey(t)
	ciphertext, err := Encrypt("wrapped", &key.PublicKey)
	require.NoError(t, err)

	var wrapped strings.Builder
	for i := 0; i < len(ciphertext); i += 76 {
		end := min(i+76, len(ciphertext))
		wrapped.WriteString(ciphertext[i:end])
		wrapped.WriteString("\n")
	}

	decrypted, err := Decrypt(wrapped.String(), key)
	require.NoError(t, err)
	require.Equal(t, "wrapped", decrypted)
}

func TestStaticKeyProviderFromPEM(t *testing.T) {
	key := testKey(t)
	pubPEM, privPEM, err := EncodePEM(key)
	require.NoError(t, err)

	calls := 0
	provider := NewStaticKeyProvider(func(ctx context.Context) (Material, error) {
		calls++
		return Material{Public: pubPEM, Private: privPEM}, nil
	})

	ctx := context.Background()
	pub, err := provider.PublicKey(ctx)
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))

	priv, err := provider.PrivateKey(ctx)
	require.NoError(t, err)
	require.True(t, priv.Equal(key))
	require.Equal(t, 1, calls)
}

func TestStaticKeyProviderFromBareBase64PKCS1(t *testing.T) {
	key := testKey(t)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	privDER := x509.MarshalPKCS1PrivateKey(key)

	provider := NewStaticKeyProvider(InlineMaterial(
		base64.StdEncoding.EncodeToString(pubDER),
		base64.StdEncoding.EncodeToString(privDER),
	))
	priv, err := provider.PrivateKey(context.Background())
	require.NoError(t, err)
	require.True(t, priv.Equal(key))
}

func TestStaticKeyProviderFromFiles(t *testing.T) {
	key := testKey(t)
	pubPEM, privPEM, err := EncodePEM(key)
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := filepath.Join(dir, "pub.pem")
	privPath := filepath.Join(dir, "priv.pem")
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0o644))
	require.NoError(t, os.WriteFile(privPath, privPEM, 0o600))

	provider := NewStaticKeyProvider(FileMaterial(pubPath, privPath))
	pub, err := provider.PublicKey(context.Background())
	require.NoError(t, err)
	require.True(t, pub.Equal(&key.PublicKey))
}

func TestStaticKeyProviderMismatch(t *testing.T) {
	key := testKey(t)
	other, err := GenerateKeyPair(1024)
	require.NoError(t, err)
	pubPEM, _, err := EncodePEM(other)
	require.NoError(t, err)
	_, privPEM, err := EncodePEM(key)
	require.NoError(t, err)

	provider := NewStaticKeyProvider(InlineMaterial(string(pubPEM), string(privPEM)))
	_, err = provider.PublicKey(context.Background())
	require.ErrorIs(t, err, ErrKeyMismatch)
}

func TestStaticKeyProviderCancellationNotSticky(t *testing.T) {
	key := testKey(t)
	pubPEM, privPEM, err := EncodePEM(key)
	require.NoError(t, err)

	provider := NewStaticKeyProvider(func(ctx context.Context) (Material, error) {
		if err := ctx.Err(); err != nil {
			return Material{}, err
		}
		return Material{Public: pubPEM, Private: privPEM}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = provider.PublicKey(ctx)
	require.True(t, errors.Is(err, context.Canceled))

	_, err = provider.PublicKey(context.Background())
	require.NoError(t, err)
}

func TestStaticKeyProviderMissingMaterial(t *testing.T) {
	provider := NewStaticKeyProvider(InlineMaterial("", ""))
	_, err := provider.PrivateKey(context.Background())
	require.ErrorIs(t, err, ErrNoKeyMaterial)
}

func TestChannelOpenOr(t *testing.T) {
	key := testKey(t)
	channel := NewChannel(NewKeyPairProvider(key))
	ctx := context.Background()

	sealed, err := channel.Seal(ctx, "hi")
	require.NoError(t, err)
	require.Equal(t, "hi", channel.OpenOr(ctx, sealed, "?"))
	require.Equal(t, "?", channel.OpenOr(ctx, "garbage", "?"))

	limit, err := channel.MaxPlaintextSize(ctx)
	require.NoError(t, err)
	require.Equal(t, 245, limit)
}

func TestChannelSealKeyFailure(t *testing.T) {
	channel := NewChannel(NewStaticKeyProvider(nil))
	_, err := channel.Seal(context.Background(), "hi")
	var encErr *EncryptionError
	require.ErrorAs(t, err, &encErr)
	require.ErrorIs(t, err, ErrNoKeyMaterial)
}

func TestFingerprint(t *testing.T) {
	key := testKey(t)
	fp, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(fp, "SHA256:"))

	again, err := NewChannel(NewKeyPairProvider(key)).Fingerprint(context.Background())
	require.NoError(t, err)
	require.Equal(t, fp, again)
}
