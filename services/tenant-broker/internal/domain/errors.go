package domain

import "errors"

// Ошибки предметной области. Транспортный слой переводит их в коды pkg/errors.
var (
	// ErrValidation некорректные входные данные, побочных эффектов не было
	ErrValidation = errors.New("validation failed")

	// ErrLoginNameUnavailable имя роли хранилища уже занято другим арендатором
	ErrLoginNameUnavailable = errors.New("login name is not available")

	// ErrTenantExists запись с таким email уже есть в реестре
	ErrTenantExists = errors.New("tenant already exists")

	// ErrTenantNotFound арендатор не найден в реестре
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrOwnerNotFound владелец не найден при входе сотрудника
	ErrOwnerNotFound = errors.New("owner not found")

	// ErrPrincipalNotFound сотрудник с таким телефоном не найден в базе арендатора
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrCredentialMismatch неверные учетные данные владельца. Не уточняет, какая часть не совпала.
	ErrCredentialMismatch = errors.New("credential mismatch")

	// ErrInvalidCredentials неверный пароль сотрудника
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrProvisioningFailed подготовка хранилища не удалась, запись реестра откатана
	ErrProvisioningFailed = errors.New("provisioning failed")

	// ErrCryptoFailure ошибка шифрования или расшифровки секрета входа
	ErrCryptoFailure = errors.New("crypto failure")

	// ErrCredentialUnavailable секрет для подключения определить не удалось
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrContextUnavailable реестр или база арендатора недоступны
	ErrContextUnavailable = errors.New("tenant context unavailable")

	// ErrInvalidToken токен не прошел проверку по любой причине
	ErrInvalidToken = errors.New("invalid token")
)
