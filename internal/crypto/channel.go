package crypto

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tOgg1/courier/internal/logging"
)

// Channel seals and opens message bodies with keys from a KeyProvider.
type Channel struct {
	keys   KeyProvider
	logger zerolog.Logger
}

// NewChannel creates a Channel bound to keys.
func NewChannel(keys KeyProvider) *Channel {
	return &Channel{
		keys:   keys,
		logger: logging.Component("crypto"),
	}
}

// Seal encrypts plaintext with the provider's public key. Key loading failures
// are reported as *EncryptionError as well.
func (c *Channel) Seal(ctx context.Context, plaintext string) (string, error) {
	pub, err := c.keys.PublicKey(ctx)
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	return Encrypt(plaintext, pub)
}

// Open decrypts ciphertext with the provider's private key.
func (c *Channel) Open(ctx context.Context, ciphertext string) (string, error) {
	priv, err := c.keys.PrivateKey(ctx)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	return Decrypt(ciphertext, priv)
}

// OpenOr decrypts ciphertext, logging and returning fallback on failure.
func (c *Channel) OpenOr(ctx context.Context, ciphertext, fallback string) string {
	plain, err := c.Open(ctx, ciphertext)
	if err != nil {
		c.logger.Warn().Err(err).Int("ciphertext_len", len(ciphertext)).Msg("message body could not be decrypted")
		return fallback
	}
	return plain
}

// MaxPlaintextSize reports the payload bound of the current public key.
func (c *Channel) MaxPlaintextSize(ctx context.Context) (int, error) {
	pub, err := c.keys.PublicKey(ctx)
	if err != nil {
		return 0, err
	}
	return MaxPlaintextSize(pub), nil
}

// Fingerprint returns the fingerprint of the provider's public key.
func (c *Channel) Fingerprint(ctx context.Context) (string, error) {
	pub, err := c.keys.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return Fingerprint(pub)
}
