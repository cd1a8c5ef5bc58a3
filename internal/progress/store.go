/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package progress persists the playback cursor across restarts.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Cursor is the single-row record holding the last fully handled clip id.
// "Handled" means the clip is no longer current: played to the end, skipped,
// or permanently failed for this run.
type Cursor struct {
	ID              uint `gorm:"primaryKey"`
	LastCompletedID int64
	UpdatedAt       time.Time
}

// Store is a durable single-value progress store.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the progress database at path.
// Synchronous mode is forced to FULL so Save is crash-safe before it returns.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=FULL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open progress db: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing database handle.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Cursor{}); err != nil {
		return nil, fmt.Errorf("migrate progress schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the persisted cursor. The second return value is false when
// no cursor has been saved yet.
func (s *Store) Load(ctx context.Context) (int64, bool, error) {
	var cursor Cursor
	err := s.db.WithContext(ctx).First(&cursor, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor: %w", err)
	}
	return cursor.LastCompletedID, true, nil
}

// Save persists the cursor. The write is committed before Save returns.
func (s *Store) Save(ctx context.Context, lastCompletedID int64) error {
	cursor := Cursor{ID: 1, LastCompletedID: lastCompletedID, UpdatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Save(&cursor).Error; err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Reset removes the persisted cursor so the next run starts from the top.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Delete(&Cursor{}, "id = ?", 1).Error; err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	return nil
}
