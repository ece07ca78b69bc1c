package migrations

import (
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createDeliveriesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_deliveries_status_channel_created ON deliveries (status, channel, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON deliveries (next_retry_at) WHERE status = 'PENDING'`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_configuration_id ON deliveries (configuration_id) WHERE configuration_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_correlation_id ON deliveries (correlation_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}
