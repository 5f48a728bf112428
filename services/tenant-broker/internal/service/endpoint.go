package service

import (
	"time"

	"ShopPlatform/services/tenant-broker/internal/domain"
)

// StorageEndpoint адрес кластера, в котором живут базы арендаторов
type StorageEndpoint struct {
	Host           string
	Port           int
	SSLMode        string
	ConnectTimeout time.Duration
}

// Descriptor дескриптор подключения к базе арендатора от имени его роли
func (e StorageEndpoint) Descriptor(unit, principal, secret string) domain.ConnectionDescriptor {
	return domain.ConnectionDescriptor{
		Host:           e.Host,
		Port:           e.Port,
		Database:       unit,
		User:           principal,
		Password:       secret,
		SSLMode:        e.SSLMode,
		ConnectTimeout: e.ConnectTimeout,
	}
}
