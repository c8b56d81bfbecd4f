package crypto

import (
	"crypto/rsa"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the OpenSSH-style SHA256 fingerprint of pub, so users
// can compare keys out of band with familiar tooling.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", ErrNoKey
	}
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("convert public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshKey), nil
}
