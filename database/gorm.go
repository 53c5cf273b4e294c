package database

import (
	"fmt"
	"time"

	"github.com/sahilchouksey/icm-reconcile/config"
	"github.com/sahilchouksey/icm-reconcile/model"
	applog "github.com/sahilchouksey/icm-reconcile/utils/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GORMStore struct {
	db *gorm.DB
}

// StartGORM initializes a GORM connection to PostgreSQL
func StartGORM() (*GORMStore, error) {
	getEnv, err := config.Get()
	if err != nil {
		return nil, err
	}

	// Configure GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if getEnv.GO_ENV == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(DSN(getEnv)), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: false,
		PrepareStmt:            true,
	})
	if err != nil {
		applog.Errorw("unable to connect to PostgreSQL", "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	applog.Infow("connected to PostgreSQL", "host", getEnv.DB_HOST, "database", getEnv.DB_NAME)

	return &GORMStore{db: db}, nil
}

// NewGORMStore wraps an already opened connection
func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// DSN builds the Postgres connection string shared by GORM and the LISTEN/NOTIFY listener
func DSN(env *config.EnviornmentVariable) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		env.DB_HOST,
		env.DB_USER_NAME,
		env.DB_PASSWORD,
		env.DB_NAME,
		env.DB_PORT,
		env.DB_SSL_MODE,
	)
}

// Models lists every persisted model in migration order
func Models() []interface{} {
	return []interface{}{
		// Exam structure
		&model.Exam{},
		&model.School{},
		&model.ExamSchool{},
		&model.Subject{},
		&model.ExamSubject{},
		&model.GradeRange{},

		// Candidates and their score records
		&model.Candidate{},
		&model.SubjectRegistration{},

		// Uploaded sheets and extraction output
		&model.Document{},
		&model.UnmatchedExtractionRecord{},

		// Scheduled job audit
		&model.CronJobLog{},
	}
}

// Migrate runs AutoMigrate for every model
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// Init runs the AutoMigrate to create/update tables
func (s *GORMStore) Init() error {
	applog.Infow("running GORM AutoMigrate", "models", len(Models()))

	if err := Migrate(s.db); err != nil {
		applog.Errorw("AutoMigrate failed", "error", err)
		return err
	}

	applog.Infow("GORM AutoMigrate completed")
	return nil
}

// Close closes the database connection
func (s *GORMStore) Close() error {
	applog.Infow("closing database connection")
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the GORM DB instance for services and handlers
func (s *GORMStore) GetDB() *gorm.DB {
	return s.db
}

// HealthCheck verifies the database connection is alive
func (s *GORMStore) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
