package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/novalearn/nova-coach/internal/chat"
	"github.com/novalearn/nova-coach/internal/content"
	"github.com/novalearn/nova-coach/internal/memory"
	"github.com/novalearn/nova-coach/internal/profile"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate creates or updates the schema for every table this service owns.
// Content chunks are written by the ingestion pipeline but share the schema.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&chat.Session{},
		&chat.Message{},
		&memory.Memory{},
		&content.Chunk{},
		&profile.LearnerProfile{},
	)
}
