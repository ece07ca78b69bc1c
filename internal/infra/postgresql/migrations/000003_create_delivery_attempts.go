package migrations

import (
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createDeliveryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_delivery_id ON delivery_attempts (delivery_id)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_attempts_delivery_attempt ON delivery_attempts (delivery_id, attempt_number)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_configuration_started ON delivery_attempts (configuration_id, started_at) WHERE configuration_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_started_at ON delivery_attempts (started_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}
