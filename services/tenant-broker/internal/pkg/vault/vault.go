package vault

// Config ключевой материал шифра секретов входа
type Config struct {
	Key string
	IV  string
}

// Vault хранилище секретов: пароли приложения хешируются, секреты входа в хранилище шифруются.
// Два класса секретов обрабатываются разными примитивами и не взаимозаменяемы.
type Vault struct {
	passwords PasswordHasher
	secrets   SecretCipher
}

// New создает Vault. Ошибка длины ключа или IV возвращается сразу, до первого запроса.
func New(cfg Config) (*Vault, error) {
	secrets, err := NewAESCipher([]byte(cfg.Key), []byte(cfg.IV))
	if err != nil {
		return nil, err
	}
	return &Vault{passwords: NewArgon2Hasher(), secrets: secrets}, nil
}

// NewWith собирает Vault из готовых компонентов
func NewWith(passwords PasswordHasher, secrets SecretCipher) *Vault {
	return &Vault{passwords: passwords, secrets: secrets}
}

// HashPassword хеширует пароль приложения
func (v *Vault) HashPassword(plaintext string) (string, error) {
	return v.passwords.Hash(plaintext)
}

// VerifyPassword сверяет пароль приложения с хешем
func (v *Vault) VerifyPassword(plaintext, stored string) bool {
	return v.passwords.Verify(plaintext, stored)
}

// EncryptSecret шифрует секрет входа в хранилище
func (v *Vault) EncryptSecret(plaintext string) (string, error) {
	return v.secrets.Encrypt(plaintext)
}

// DecryptSecret расшифровывает секрет входа в хранилище
func (v *Vault) DecryptSecret(ciphertext string) (string, error) {
	return v.secrets.Decrypt(ciphertext)
}
