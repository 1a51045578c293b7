package models

import "github.com/google/uuid"

// Типы впечатлений. Комиссия берётся только за платные и смешанные.
const (
	ExperienceTypePaid     = "pago"
	ExperienceTypeExchange = "intercambio"
	ExperienceTypeMixed    = "ambos"
)

// ExperienceSummary — минимальная проекция впечатления, которую отдаёт
// внешний сервис каталога. CRUD впечатлений живёт вне этого ядра.
type ExperienceSummary struct {
	ID             uuid.UUID `db:"id" json:"id"`
	HostID         uuid.UUID `db:"host_id" json:"host_id"`
	Type           string    `db:"type" json:"type"`
	PricePerPerson *float64  `db:"price_per_person" json:"price_per_person,omitempty"`
	Capacity       int       `db:"capacity" json:"capacity"`
}

// FeeApplies возвращает true, если для типа впечатления взимается комиссия платформы.
func FeeApplies(experienceType string) bool {
	return experienceType == ExperienceTypePaid || experienceType == ExperienceTypeMixed
}
