package feeds

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Private-feed credentials are stored encrypted at rest and decrypted only at
// fetch time. AES-GCM with a key derived from the configured passphrase;
// stored form is base64(nonce || ciphertext).

func credentialCipher(passphrase string) (cipher.AEAD, error) {
	if passphrase == "" {
		return nil, errors.New("feed credential key is not configured")
	}

	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func EncryptCredential(passphrase, plaintext string) (string, error) {
	aead, err := credentialCipher(passphrase)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func DecryptCredential(passphrase, encoded string) (string, error) {
	aead, err := credentialCipher(passphrase)
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode credential: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", errors.New("credential ciphertext too short")
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}

	return string(plaintext), nil
}
