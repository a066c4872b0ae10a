package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/chatstack/chat-checkpoint/internal/chat"
	"github.com/chatstack/chat-checkpoint/internal/workflow"
)

// Connect opens the relational store and migrates the engine's tables.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&chat.Session{},
		&chat.Message{},
		&chat.Job{},
		&workflow.CheckpointRecord{},
	)
}
