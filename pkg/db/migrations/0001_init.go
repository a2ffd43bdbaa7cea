package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Host struct {
	ID                    uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Account               string            `gorm:"type:text;not null;index"`
	DisplayName           string            `gorm:"type:text"`
	AnsibleHost           string            `gorm:"type:text"`
	CanonicalFacts        datatypes.JSONMap `gorm:"type:jsonb;not null"`
	Facts                 datatypes.JSONMap `gorm:"type:jsonb"`
	Tags                  datatypes.JSON    `gorm:"type:jsonb"`
	SystemProfile         datatypes.JSONMap `gorm:"type:jsonb"`
	Reporter              string            `gorm:"type:text"`
	StaleTimestamp        time.Time         `gorm:"type:timestamptz;not null"`
	StaleWarningTimestamp time.Time         `gorm:"type:timestamptz;not null"`
	CulledTimestamp       time.Time         `gorm:"type:timestamptz;not null;index"`
	CreatedOn             time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	ModifiedOn            time.Time         `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

func (Host) TableName() string { return "hosts" }

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(&Host{}); err != nil {
		return err
	}

	// GIN index so the canonical-fact OR query stays indexed as fleets grow.
	return gormDB.WithContext(ctx).Exec(
		`CREATE INDEX IF NOT EXISTS idx_hosts_canonical_facts ON hosts USING gin (canonical_facts)`,
	).Error
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(&Host{})
}
