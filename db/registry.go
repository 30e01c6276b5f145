// Package db holds the local sqlite model registry: one row per trained
// model version, queried by the serving layer for the current best model.
package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

var ErrNoModels = errors.New("no models registered")

// InitDB opens (or creates) the registry database.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS models (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        version TEXT NOT NULL,
        path TEXT NOT NULL,
        model_type TEXT NOT NULL,
        accuracy REAL NOT NULL,
        data_points INTEGER DEFAULT 0,
        trained_at DATETIME NOT NULL,
        registered_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(version)
    );
    `

	_, err = database.Exec(query)
	return err
}

func CloseDB() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// ModelRecord is one registered model version.
type ModelRecord struct {
	Version    string    `json:"version"`
	Path       string    `json:"path"`
	ModelType  string    `json:"model_type"`
	Accuracy   float64   `json:"accuracy"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

// RegisterModel inserts or replaces a model version.
func RegisterModel(rec ModelRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if rec.Version == "" || rec.Path == "" {
		return errors.New("version and path required")
	}
	_, err := database.Exec(`
        INSERT OR REPLACE INTO models (version, path, model_type, accuracy, data_points, trained_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Version, rec.Path, rec.ModelType, rec.Accuracy, rec.DataPoints, rec.TrainedAt)
	return err
}

// BestModel returns the registered model with the highest accuracy,
// breaking ties by most recent training time.
func BestModel() (*ModelRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	var rec ModelRecord
	err := database.QueryRow(`
        SELECT version, path, model_type, accuracy, data_points, trained_at
        FROM models
        ORDER BY accuracy DESC, trained_at DESC
        LIMIT 1`).Scan(&rec.Version, &rec.Path, &rec.ModelType, &rec.Accuracy, &rec.DataPoints, &rec.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoModels
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetModel looks a version up.
func GetModel(version string) (*ModelRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	var rec ModelRecord
	err := database.QueryRow(`
        SELECT version, path, model_type, accuracy, data_points, trained_at
        FROM models
        WHERE version = ?`, version).Scan(&rec.Version, &rec.Path, &rec.ModelType, &rec.Accuracy, &rec.DataPoints, &rec.TrainedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoModels
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListModels returns all registered versions, newest first.
func ListModels() ([]ModelRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT version, path, model_type, accuracy, data_points, trained_at
        FROM models
        ORDER BY trained_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]ModelRecord, 0)
	for rows.Next() {
		var rec ModelRecord
		if err := rows.Scan(&rec.Version, &rec.Path, &rec.ModelType, &rec.Accuracy, &rec.DataPoints, &rec.TrainedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
