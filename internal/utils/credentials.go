package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"idle_engine/internal/model"
)

var ErrNoCredentialsKey = errors.New("credentials key is not configured")

// Seal encrypts plain with AES-256-GCM. The output is "iv:tag:ciphertext" in hex.
func Seal(key, plain string) (string, error) {
	if len(key) != 32 {
		return "", ErrNoCredentialsKey
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, iv, []byte(plain), nil)
	tagStart := len(sealed) - gcm.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Open reverses Seal.
func Open(key, sealed string) (string, error) {
	if len(key) != 32 {
		return "", ErrNoCredentialsKey
	}
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", errors.New("sealed value must have three parts")
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode tag: %w", err)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(iv) != gcm.NonceSize() {
		return "", errors.New("invalid iv length")
	}
	plain, err := gcm.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func newGCM(key string) (cipher.AEAD, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	// iv is 16 bytes in the stored format.
	return cipher.NewGCMWithNonceSize(block, 16)
}

// SealCredentials seals sid and sls. The machine auth cookie is stored as is.
func SealCredentials(key string, c model.SessionCredentials) (model.SessionCredentials, error) {
	sid, err := Seal(key, c.SID)
	if err != nil {
		return model.SessionCredentials{}, err
	}
	sls, err := Seal(key, c.SLS)
	if err != nil {
		return model.SessionCredentials{}, err
	}
	return model.SessionCredentials{SID: sid, SLS: sls, SMA: c.SMA}, nil
}

func OpenCredentials(key string, c model.SessionCredentials) (model.SessionCredentials, error) {
	sid, err := Open(key, c.SID)
	if err != nil {
		return model.SessionCredentials{}, fmt.Errorf("open sid: %w", err)
	}
	sls, err := Open(key, c.SLS)
	if err != nil {
		return model.SessionCredentials{}, fmt.Errorf("open sls: %w", err)
	}
	return model.SessionCredentials{SID: sid, SLS: sls, SMA: c.SMA}, nil
}
