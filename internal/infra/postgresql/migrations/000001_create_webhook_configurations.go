package migrations

import (
	"github.com/basilakis/kai-delivery/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func createWebhookConfigurationsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_webhook_configurations",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.WebhookConfigurationModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_webhook_configurations_owner_id ON webhook_configurations (owner_id)`,
				`CREATE INDEX IF NOT EXISTS idx_webhook_configurations_active ON webhook_configurations (is_active) WHERE is_active`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.WebhookConfigurationModel{})
		},
	}
}
