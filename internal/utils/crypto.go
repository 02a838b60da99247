package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// Encrypt seals a plaintext (an access token, typically) with AES-GCM and
// returns the nonce-prefixed ciphertext base64 encoded, ready to store.
// Each call uses a fresh random nonce, so encrypting the same token twice
// yields different ciphertexts.
func Encrypt(plainText, keyString string) (string, error) {
	aesGCM, err := newGCM(keyString)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aesGCM.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A wrong key or a tampered ciphertext fails the
// GCM authentication check and returns an error rather than garbage.
func Decrypt(encryptedText, keyString string) (string, error) {
	aesGCM, err := newGCM(keyString)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := aesGCM.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(keyString string) (cipher.AEAD, error) {
	key, err := keyBytes(keyString)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// keyBytes accepts the key either as raw bytes (AES-128/192/256 lengths) or
// as 64 hex characters.
func keyBytes(keyString string) ([]byte, error) {
	switch len(keyString) {
	case 64:
		return hex.DecodeString(keyString)
	case 16, 24, 32:
		return []byte(keyString), nil
	}
	return nil, errors.New("invalid key length: must be 16/24/32 bytes raw or 64 hex chars")
}
