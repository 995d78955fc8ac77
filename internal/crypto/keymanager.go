// Package crypto handles venue credentials: sealing secrets at rest and
// signing Hyperliquid actions.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	sealedVersion    = 1
)

// sealedSecret is the on-disk format of an encrypted credential.
type sealedSecret struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource says where a credential comes from. A raw value wins over a
// sealed file.
type KeySource struct {
	Raw        string
	SealedPath string
	Password   string
}

// Configured reports whether any source is set.
func (k KeySource) Configured() bool {
	return k.Raw != "" || k.SealedPath != ""
}

// Seal encrypts secret with a password using PBKDF2-HMAC-SHA256 and
// AES-256-GCM and returns the JSON blob to write to disk.
func Seal(secret []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(secret) == 0 {
		return nil, errors.New("crypto: secret must not be empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	return json.MarshalIndent(sealedSecret{
		Version:    sealedVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, secret, nil)),
	}, "", "  ")
}

// Open decrypts a blob produced by Seal.
func Open(blob []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	var stored sealedSecret
	if err := json.Unmarshal(blob, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing sealed secret: %w", err)
	}
	if stored.Version != sealedVersion {
		return nil, fmt.Errorf("crypto: unsupported version %d", stored.Version)
	}

	var fields [3][]byte
	for i, s := range []string{stored.Salt, stored.Nonce, stored.Ciphertext} {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("crypto: decoding sealed field %d: %w", i, err)
		}
		fields[i] = b
	}

	gcm, err := newGCM(password, fields[0])
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, fields[1], fields[2], nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadSecret resolves a text credential (for example a base64 API secret).
func LoadSecret(src KeySource) (string, error) {
	if src.Raw != "" {
		return src.Raw, nil
	}
	if src.SealedPath == "" {
		return "", errors.New("crypto: no secret source configured")
	}
	blob, err := os.ReadFile(src.SealedPath)
	if err != nil {
		return "", fmt.Errorf("crypto: reading sealed secret: %w", err)
	}
	plain, err := Open(blob, src.Password)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(plain)), nil
}

// LoadPrivateKey resolves a 32-byte secp256k1 key and returns it as hex
// without the 0x prefix.
func LoadPrivateKey(src KeySource) (string, error) {
	s, err := LoadSecret(src)
	if err != nil {
		return "", err
	}
	k := strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(k)
	if err != nil {
		return "", fmt.Errorf("crypto: private key is not valid hex: %w", err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("crypto: expected 32-byte key, got %d bytes", len(b))
	}
	return k, nil
}
