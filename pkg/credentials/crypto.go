package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"

	"consensus/pkg/logx"
)

// Encrypted file layout: [salt][nonce][ciphertext+tag].
const (
	EncryptedSuffix = ".enc"

	saltSize  = 16
	nonceSize = 12
	scryptN   = 32768 // 2^15
	scryptR   = 8
	scryptP   = 1
	keySize   = 32 // AES-256
)

// ErrDecrypt hides whether the password or the file was wrong.
var ErrDecrypt = errors.New("decryption failed (wrong password or corrupted file)")

// Encrypt seals plaintext with a key derived from password.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, saltSize+nonceSize+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	return append(out, sealed...), nil
}

// Decrypt opens data produced by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < saltSize+nonceSize+16 { // 16 is the GCM tag
		return nil, fmt.Errorf("keys file is corrupted or invalid format (too small)")
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[saltSize+nonceSize:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	passwordBytes := []byte(password)
	defer clear(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptFile encrypts the plain keys file src into dst with mode 0600.
// The plain file is validated first so a typo is not locked away.
func EncryptFile(src, dst, password string) error {
	plaintext, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read keys file: %w", err)
	}
	if _, err := Parse(plaintext); err != nil {
		return err
	}
	sealed, err := Encrypt(plaintext, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, sealed, 0600); err != nil {
		return fmt.Errorf("failed to write encrypted keys file: %w", err)
	}
	return nil
}

// DecryptFile reads and decrypts dst written by EncryptFile. A file readable
// by others gets its permissions tightened first.
func DecryptFile(path, password string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat keys file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		logx.Warnf("⚠️  Keys file %s has permissions %04o, fixing to 0600", path, perm)
		if err := os.Chmod(path, 0600); err != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}
	return Decrypt(data, password)
}
