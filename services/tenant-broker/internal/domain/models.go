package domain

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Role роль в выданном токене
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEmployee Role = "employee"
)

// TenantIdentity запись реестра арендаторов.
// Email уникален и одновременно является именем изолированной базы арендатора.
// Запись существует только если база и роль арендатора были успешно подготовлены.
// После создания не изменяется, удаляется только компенсацией неудачной подготовки.
type TenantIdentity struct {
	Email            string `json:"email"`
	StorageLoginName string `json:"storage_login_name"`
	// EncryptedLoginSecret секрет входа в хранилище, обратимо зашифрованный.
	// Это отдельный класс секрета: его нужно расшифровывать для каждого подключения к базе.
	EncryptedLoginSecret string `json:"-"`
	// PasswordHash односторонний хеш пароля приложения владельца
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// UnitName имя изолированной базы арендатора
func (t *TenantIdentity) UnitName() string {
	return t.Email
}

// SecondaryPrincipal сотрудник арендатора. Хранится в базе арендатора, а не в реестре.
type SecondaryPrincipal struct {
	ID           string
	DisplayName  string
	ContactPhone string
	PasswordHash string
}

// ConnectionDescriptor параметры подключения к базе арендатора на время одного запроса.
// Никогда не сериализуется клиенту и не логируется с паролем.
type ConnectionDescriptor struct {
	Host           string        `json:"-"`
	Port           int           `json:"-"`
	Database       string        `json:"-"`
	User           string        `json:"-"`
	Password       string        `json:"-"`
	SSLMode        string        `json:"-"`
	ConnectTimeout time.Duration `json:"-"`
}

// DSN строка подключения в формате URL с экранированными логином и паролем
func (d ConnectionDescriptor) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(d.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// String описание без пароля
func (d ConnectionDescriptor) String() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s", d.User, d.Host, d.Port, d.Database)
}

// GoString не дает %#v вывести пароль
func (d ConnectionDescriptor) GoString() string {
	return d.String()
}

// ProvisionRequest данные для подготовки хранилища нового арендатора
type ProvisionRequest struct {
	Email       string
	Password    string
	LoginName   string
	LoginSecret string
}

// ProvisionResult результат подготовки
type ProvisionResult struct {
	Identity           *TenantIdentity
	AlreadyProvisioned bool
	TablesCreated      int
}

// LoginRequest вход владельца: новый email запускает регистрацию с подготовкой хранилища
type LoginRequest struct {
	Email       string
	Password    string
	LoginName   string
	LoginSecret string
}

// EmployeeLoginRequest вход сотрудника в контексте арендатора владельца
type EmployeeLoginRequest struct {
	OwnerEmail string
	Phone      string
	Password   string
}

// AuthResult результат успешного входа
type AuthResult struct {
	Token        string
	Email        string
	DatabaseName string
	Role         Role
	EmployeeID   string
	EmployeeName string
	Provisioned  bool
}
