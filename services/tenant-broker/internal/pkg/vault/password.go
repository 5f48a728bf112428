package vault

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Параметры Argon2id фиксированы: изменение делает невалидными все сохраненные хеши
const (
	saltLength    = 16
	digestLength  = 32
	argonTime     = 1
	argonMemoryKB = 64 * 1024
	argonThreads  = 4
)

// PasswordHasher одностороннее хеширование паролей приложения (владельцы, сотрудники).
// Хеш никогда не расшифровывается, только сравнивается.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, stored string) bool
}

// Argon2Hasher хранит base64(salt‖digest), где digest = Argon2id(plaintext, salt)
type Argon2Hasher struct{}

// NewArgon2Hasher создает хешер паролей
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

// Hash генерирует новую соль на каждый вызов, поэтому результат недетерминирован
func (h *Argon2Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	digest := derive(plaintext, salt)
	out := make([]byte, 0, saltLength+digestLength)
	out = append(out, salt...)
	out = append(out, digest...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Verify возвращает false для любого некорректного сохраненного значения
func (h *Argon2Hasher) Verify(plaintext, stored string) bool {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil || len(raw) != saltLength+digestLength {
		return false
	}

	salt, want := raw[:saltLength], raw[saltLength:]
	got := derive(plaintext, salt)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func derive(plaintext string, salt []byte) []byte {
	return argon2.IDKey([]byte(plaintext), salt, argonTime, argonMemoryKB, argonThreads, digestLength)
}
