// Package store persists server definitions and player sessions in an
// embedded SQLite database.
package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a definition does not exist.
var ErrNotFound = errors.New("definition not found")

// Definition is the durable configuration of one managed server.
type Definition struct {
	ID   string `gorm:"primaryKey" json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // vanilla | paper | spigot | forge | fabric | neoforge | bungeecord | velocity

	Dir      string `json:"dir"`      // working directory
	Jar      string `json:"jar"`      // executable jar, relative to Dir; empty = kind default
	JavaPath string `json:"javaPath"` // launch interpreter; empty = global default

	HeapMinMB int    `json:"heapMinMb"`
	HeapMaxMB int    `json:"heapMaxMb"`
	ExtraArgs string `json:"extraArgs"` // additional JVM flags, space separated

	Port        int  `json:"port"`
	AutoStart   bool `json:"autoStart"`
	AutoRestart bool `json:"autoRestart"`
	MaxPlayers  int  `json:"maxPlayers"`

	Status string `json:"status"` // last known supervisor state
	// gorm would split PID into p_id; pin the column so map updates match.
	PID int `gorm:"column:pid" json:"pid"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PlayerSession records one join/leave span of a player on a server.
type PlayerSession struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	ServerID string     `gorm:"index" json:"serverId"`
	Player   string     `gorm:"index" json:"player"`
	UUID     string     `json:"uuid"` // empty when the server never announced it
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt"` // nil while online
}

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the SQLite database at path and migrates
// the schema.
func New(path string) (*Store, error) {
	gl := gormlogger.New(
		log.New(os.Stderr, "", log.LstdFlags),
		gormlogger.Config{
			IgnoreRecordNotFoundError: true,
			LogLevel:                  gormlogger.Error,
		},
	)

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Definition{}, &PlayerSession{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveDefinition inserts a new definition.
func (s *Store) SaveDefinition(def *Definition) error {
	return s.db.Create(def).Error
}

// UpdateDefinition persists all fields of an existing definition.
func (s *Store) UpdateDefinition(def *Definition) error {
	return s.db.Save(def).Error
}

// GetDefinition fetches one definition; ErrNotFound when absent.
func (s *Store) GetDefinition(id string) (*Definition, error) {
	var def Definition
	if err := s.db.First(&def, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query definition: %w", err)
	}
	return &def, nil
}

// ListDefinitions returns all definitions.
func (s *Store) ListDefinitions() ([]Definition, error) {
	var defs []Definition
	if err := s.db.Order("created_at").Find(&defs).Error; err != nil {
		return nil, err
	}
	return defs, nil
}

// DeleteDefinition removes a definition row.
func (s *Store) DeleteDefinition(id string) error {
	return s.db.Delete(&Definition{}, "id = ?", id).Error
}

// UpdateStatus records the last known supervisor state and pid for a server.
func (s *Store) UpdateStatus(id, status string, pid int) error {
	return s.db.Model(&Definition{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "pid": pid}).Error
}

// RecordJoin opens a player session.
func (s *Store) RecordJoin(serverID, player, uuid string, at time.Time) error {
	return s.db.Create(&PlayerSession{
		ServerID: serverID,
		Player:   player,
		UUID:     uuid,
		JoinedAt: at,
	}).Error
}

// RecordLeave closes the most recent open session for the player, if any.
func (s *Store) RecordLeave(serverID, player string, at time.Time) error {
	var session PlayerSession
	err := s.db.Where("server_id = ? AND player = ? AND left_at IS NULL", serverID, player).
		Order("joined_at DESC").First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // leave without a recorded join is not an error
		}
		return err
	}
	return s.db.Model(&session).Update("left_at", at).Error
}

// OpenSessions returns sessions without a recorded leave, used to close
// dangling rows after an ungraceful shutdown.
func (s *Store) OpenSessions(serverID string) ([]PlayerSession, error) {
	var sessions []PlayerSession
	err := s.db.Where("server_id = ? AND left_at IS NULL", serverID).Find(&sessions).Error
	return sessions, err
}

// CloseAllSessions stamps every open session of a server with the given time.
// Called when a server stops or crashes, since no leave lines will follow.
func (s *Store) CloseAllSessions(serverID string, at time.Time) error {
	return s.db.Model(&PlayerSession{}).
		Where("server_id = ? AND left_at IS NULL", serverID).
		Update("left_at", at).Error
}
