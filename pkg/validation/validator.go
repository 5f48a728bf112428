package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// SecretSymbols набор спецсимволов, один из которых обязателен в секрете входа
const SecretSymbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

// MinSecretLength минимальная длина секрета входа
const MinSecretLength = 8

// MaxIdentifierLength максимальная длина идентификатора PostgreSQL (NAMEDATALEN-1)
const MaxIdentifierLength = 63

var (
	emailPattern     = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	unitNamePattern  = regexp.MustCompile(`^[a-z0-9._%+\-@]{3,63}$`)
	principalPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
	phonePattern     = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{2,31}$`)
)

// FieldError ошибка валидации конкретного поля
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validator проверки входных данных брокера арендаторов
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRequiredFields проверяет, что поля не пустые. Поля проверяются в алфавитном порядке,
// чтобы ошибка была детерминированной.
func (v *Validator) ValidateRequiredFields(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.TrimSpace(fields[name]) == "" {
			return &FieldError{Field: name, Reason: "is required"}
		}
	}
	return nil
}

// NormalizeEmail приводит email к каноническому виду: без пробелов по краям, в нижнем регистре
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail проверяет формат нормализованного email
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return &FieldError{Field: "email", Reason: "is required"}
	}
	if len(email) > MaxIdentifierLength {
		return &FieldError{Field: "email", Reason: fmt.Sprintf("must not exceed %d characters", MaxIdentifierLength)}
	}
	if !emailPattern.MatchString(email) {
		return &FieldError{Field: "email", Reason: "invalid format"}
	}
	return nil
}

// ValidateUnitName проверяет имя базы арендатора по белому списку символов.
// Имя базы совпадает с email, поэтому допускаются @ . % + -
func (v *Validator) ValidateUnitName(name string) error {
	if !unitNamePattern.MatchString(name) {
		return &FieldError{Field: "unit", Reason: "contains characters outside the allowed set"}
	}
	return nil
}

// ValidatePrincipalName проверяет имя роли хранилища: латиница в нижнем регистре, цифры, подчеркивание
func (v *Validator) ValidatePrincipalName(name string) error {
	if name == "" {
		return &FieldError{Field: "login_name", Reason: "is required"}
	}
	if !principalPattern.MatchString(name) {
		return &FieldError{Field: "login_name", Reason: "must start with a letter or underscore and contain only a-z, 0-9, _ (max 63)"}
	}
	if strings.HasPrefix(name, "pg_") {
		return &FieldError{Field: "login_name", Reason: "reserved prefix pg_"}
	}
	return nil
}

// ValidateSecretStrength политика сложности секрета входа:
// длина не меньше 8, заглавная и строчная буквы, цифра, символ из SecretSymbols
func (v *Validator) ValidateSecretStrength(secret string) error {
	if len(secret) < MinSecretLength {
		return &FieldError{Field: "login_secret", Reason: fmt.Sprintf("must be at least %d characters", MinSecretLength)}
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SecretSymbols, r):
			hasSymbol = true
		}
	}

	var missing []string
	if !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if !hasDigit {
		missing = append(missing, "digit")
	}
	if !hasSymbol {
		missing = append(missing, "symbol")
	}
	if len(missing) > 0 {
		return &FieldError{Field: "login_secret", Reason: "missing " + strings.Join(missing, ", ")}
	}

	// Кавычки и обратный слеш не входят в набор символов и не нужны в секрете
	if strings.ContainsAny(secret, "'\"\\\x00") {
		return &FieldError{Field: "login_secret", Reason: "contains forbidden characters"}
	}
	return nil
}

// ValidatePhone проверяет телефон сотрудника
func (v *Validator) ValidatePhone(phone string) error {
	if !phonePattern.MatchString(strings.TrimSpace(phone)) {
		return &FieldError{Field: "phone", Reason: "invalid format"}
	}
	return nil
}

// ValidateStringLength проверяет длину строки
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := len(value)
	if length < min {
		return &FieldError{Field: fieldName, Reason: fmt.Sprintf("must be at least %d characters, got: %d", min, length)}
	}
	if length > max {
		return &FieldError{Field: fieldName, Reason: fmt.Sprintf("must not exceed %d characters, got: %d", max, length)}
	}
	return nil
}
