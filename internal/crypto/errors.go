package crypto

import "errors"

var (
	ErrPlaintextTooLarge = errors.New("plaintext exceeds the key's payload limit")
	ErrNoKey             = errors.New("key not available")
	ErrKeyMismatch       = errors.New("public key does not match private key")
	ErrNotRSA            = errors.New("key is not an RSA key")
	ErrNoKeyMaterial     = errors.New("no key material configured")
)

// EncryptionError wraps any failure while sealing a body. The message must not
// be sent when it is returned.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string {
	return "encrypt message: " + e.Err.Error()
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// DecryptionError wraps any failure while opening a body. Callers degrade to
// a placeholder and keep going.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "decrypt message: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}
