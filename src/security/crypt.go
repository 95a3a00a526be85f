package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceLen = 24

var (
	ErrBadKey        = errors.New("credentials key must decode to 32 bytes")
	ErrBadCiphertext = errors.New("ciphertext malformed or tampered with")
)

func loadKey() ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(GetConfig().BrokerCRKey)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(raw) != 32 {
		return key, ErrBadKey
	}
	copy(key[:], raw)
	return key, nil
}

// EncryptString seals a secret with the configured key. Output is base64 of
// nonce || box.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCiphertext, err)
	}
	if len(raw) < nonceLen {
		return "", ErrBadCiphertext
	}

	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])

	plaintext, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &key)
	if !ok {
		return "", ErrBadCiphertext
	}
	return string(plaintext), nil
}
