// Package crypto encrypts and decrypts message bodies.
//
// Bodies are sealed with RSA PKCS#1 v1.5 and carried as standard base64. The
// keypair comes from a KeyProvider and is materialized once, on first use.
//
// A single keypair shared by every participant gives no confidentiality
// between distinct pairs of users. The provider interface is the seam where a
// per-conversation or hybrid key exchange has to be plugged in before the
// engine is used for anything sensitive.
package crypto
