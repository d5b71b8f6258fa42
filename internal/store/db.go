package store

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open establishes the GORM connection the way the teacher's
// database.NewPostgresConnection does: a single DSN, default logger at
// warn level so routine queries don't flood stdout.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// Migrate runs AutoMigrate for every Store model, then lays down the
// secondary structures §4.2 calls out that GORM's struct tags cannot
// express: trigram indexes for fuzzy search and a minimal vector-search
// prerequisite. These are best-effort; a database without pg_trgm
// available still runs, just without the accelerated index.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}, &Mailbox{}, &Message{}, &Attachment{}, &Column{}); err != nil {
		return err
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE INDEX IF NOT EXISTS idx_messages_subject_trgm ON messages USING gin (subject gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_from_name_trgm ON messages USING gin (from_name gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_from_email_trgm ON messages USING gin (from_email gin_trgm_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_body_tsv ON messages USING gin (to_tsvector('english', coalesce(body_text, '') || ' ' || coalesce(ai_summary, '')))`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			// Indexing accelerators are optional; the application-level
			// scorers in internal/search work without them.
			continue
		}
	}
	return nil
}
