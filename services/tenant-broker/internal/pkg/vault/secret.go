package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	KeyLength = 32
	IVLength  = 16
)

var (
	// ErrInvalidKey ключ или IV неверной длины
	ErrInvalidKey = errors.New("vault: invalid key material")
	// ErrEncryption ошибка шифрования секрета входа
	ErrEncryption = errors.New("vault: encryption failed")
	// ErrDecryption шифротекст поврежден или зашифрован другим ключом/IV
	ErrDecryption = errors.New("vault: decryption failed")
)

// SecretCipher обратимое шифрование секрета входа в хранилище арендатора.
// В отличие от паролей приложения секрет нужен в открытом виде при каждом
// подключении к базе арендатора, поэтому он шифруется, а не хешируется.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AESCipher AES-256-CBC с PKCS#7 и фиксированным IV из конфигурации.
// Шифротекст детерминирован для пары ключ/IV: один и тот же секрет всегда дает одну строку.
type AESCipher struct {
	block cipher.Block
	iv    []byte
}

// NewAESCipher проверяет длину ключа (32 байта) и IV (16 байт)
func NewAESCipher(key, iv []byte) (*AESCipher, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeyLength, len(key))
	}
	if len(iv) != IVLength {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrInvalidKey, IVLength, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	ivCopy := make([]byte, IVLength)
	copy(ivCopy, iv)
	return &AESCipher{block: block, iv: ivCopy}, nil
}

// Encrypt возвращает base64 шифротекста
func (c *AESCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty plaintext", ErrEncryption)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt обратная операция. Неверный base64, длина или дополнение дают ErrDecryption.
func (c *AESCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed base64", ErrDecryption)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: invalid ciphertext length %d", ErrDecryption, len(raw))
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, raw)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
