// Package secretbox cifra el secreto persistido del cliente (AES-256-GCM).
//
// El formato de salida es base64(nonce)|base64(ciphertext). La clave se
// deriva de una passphrase con argon2id (DeriveKey) o se parsea de una
// clave ya generada (ParseKey: base64, hex o raw de 32 bytes).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	nonceSizeGCM = 12  // AES-GCM nonce size recomendado (96 bits)
	KeyLength    = 32  // 32 bytes => AES-256
	SaltLength   = 16  // salt para argon2id
	sep          = "|" // nonce|ciphertext (ambos en base64)

	// Parámetros argon2id (mismo perfil que el hash de passwords del server)
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 2
)

// ErrFormat indica un blob que no respeta base64(nonce)|base64(ciphertext).
var ErrFormat = errors.New("secretbox: formato inválido")

// Box cifra y descifra con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// New crea un Box a partir de una clave de 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), KeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Seal(plainText []byte) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, plainText, nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open descifra un blob producido por Seal. Falla si fue manipulado.
func (b *Box) Open(blob string) ([]byte, error) {
	parts := strings.Split(strings.TrimSpace(blob), sep)
	if len(parts) != 2 {
		return nil, ErrFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return nil, fmt.Errorf("nonce inválido: esperado %d bytes, obtuvo %d", nonceSizeGCM, len(nonce))
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return pt, nil
}

// NewSalt genera un salt aleatorio para DeriveKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("salt random: %w", err)
	}
	return salt, nil
}

// DeriveKey deriva una clave AES-256 de una passphrase con argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, KeyLength)
}

// ParseKey interpreta una clave en base64 (std o raw), hex (64 chars) o raw de 32 bytes.
func ParseKey(key string) ([]byte, error) {
	key = strings.TrimSpace(key)
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == KeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(key); err == nil && len(b) == KeyLength {
		return b, nil
	}
	if len(key) == 2*KeyLength {
		if h, err := hex.DecodeString(key); err == nil {
			return h, nil
		}
	}
	if len(key) == KeyLength {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), KeyLength)
}
