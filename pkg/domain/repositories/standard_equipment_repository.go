package repositories

import "github.com/vsinha/prodplan/pkg/domain/entities"

// StandardEquipmentRepository provides access to promised-equipment lines
type StandardEquipmentRepository interface {
	GetModels() ([]string, error)
	GetEntries(modelRef string) ([]entities.StandardEquipmentEntry, error)
	LoadEntries(entries []entities.StandardEquipmentEntry) error
}
