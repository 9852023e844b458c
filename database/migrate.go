package database

import (
	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
	"gorm.io/gorm"
)

// postMigrate brings rows written before the uniqueness columns existed in
// line with them. Each statement is idempotent.
var postMigrate = []string{
	"UPDATE tables SET number_key = UPPER(TRIM(table_number)) WHERE number_key = '' OR number_key IS NULL",
	"UPDATE table_usage_histories SET open_table_id = table_id WHERE end_time IS NULL AND open_table_id IS NULL",
	"UPDATE table_usage_histories SET open_table_id = NULL WHERE end_time IS NOT NULL AND open_table_id IS NOT NULL",
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Table{},
		&models.TableUsageHistory{},
		&models.TableQRCode{},
		&models.CleaningLog{},
	)
	if err != nil {
		return err
	}
	utils.InfoLogger.Info("AutoMigrate completed.")

	for _, stmt := range postMigrate {
		res := db.Exec(stmt)
		if res.Error != nil {
			utils.ErrorLogger.WithField("statement", stmt).Errorf("post-migrate statement failed: %v", res.Error)
			return res.Error
		}
		if res.RowsAffected > 0 {
			utils.InfoLogger.WithField("rows", res.RowsAffected).Infof("post-migrate: %s", stmt)
		}
	}
	return nil
}
