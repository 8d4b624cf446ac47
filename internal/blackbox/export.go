package blackbox

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/openrover/drived/internal/model"
)

// SessionDump is the exported form of one recorded session, written as gzip
// JSON for the dump verb and fleet upload.
type SessionDump struct {
	Session      model.Session       `json:"session"`
	Ticks        []model.DriveTick   `json:"ticks"`
	ModeChanges  []model.ModeChange  `json:"modeChanges"`
	Faults       []model.Fault       `json:"faults"`
	ParamChanges []model.ParamChange `json:"paramChanges"`
}

// ExportSession loads a recorded session and writes it to path as gzip JSON.
func ExportSession(db *gorm.DB, sessionID uint, path string) (*SessionDump, error) {
	var dump SessionDump

	if err := db.First(&dump.Session, sessionID).Error; err != nil {
		return nil, fmt.Errorf("loading session %d: %w", sessionID, err)
	}
	if err := db.Where("session_id = ?", sessionID).Order("time").Find(&dump.Ticks).Error; err != nil {
		return nil, fmt.Errorf("loading ticks: %w", err)
	}
	if err := db.Where("session_id = ?", sessionID).Order("time").Find(&dump.ModeChanges).Error; err != nil {
		return nil, fmt.Errorf("loading mode changes: %w", err)
	}
	if err := db.Where("session_id = ?", sessionID).Order("time").Find(&dump.Faults).Error; err != nil {
		return nil, fmt.Errorf("loading faults: %w", err)
	}
	if err := db.Where("session_id = ?", sessionID).Order("time").Find(&dump.ParamChanges).Error; err != nil {
		return nil, fmt.Errorf("loading param changes: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating dump file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(&dump); err != nil {
		gz.Close()
		return nil, fmt.Errorf("encoding dump: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("finishing dump: %w", err)
	}

	return &dump, nil
}
