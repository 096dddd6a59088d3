// Package db records classifier training history in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// History is the training log store.
type History struct {
	database *sql.DB
}

// TrainingLog is one train or load event of a classifier.
type TrainingLog struct {
	ModelName string    `json:"model_name"`
	Source    string    `json:"source"`
	Accuracy  *float64  `json:"accuracy"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	TrainedAt time.Time `json:"trained_at"`
}

// OpenHistory opens (creating if needed) the SQLite database at path.
func OpenHistory(path string) (*History, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50) NOT NULL,
        source VARCHAR(10) NOT NULL,
        accuracy REAL,
        train_rows INTEGER DEFAULT 0,
        test_rows INTEGER DEFAULT 0,
        trained_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_model ON training_log(model_name, trained_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &History{database: database}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	return h.database.Close()
}

func (h *History) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	if entry.ModelName == "" {
		return errors.New("model name required")
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	var accuracy sql.NullFloat64
	if entry.Accuracy != nil {
		accuracy = sql.NullFloat64{Float64: *entry.Accuracy, Valid: true}
	}
	_, err := h.database.ExecContext(ctx, `
        INSERT INTO training_log (model_name, source, accuracy, train_rows, test_rows, trained_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Source, accuracy, entry.TrainRows, entry.TestRows, entry.TrainedAt.UTC())
	return err
}

// LoadTrainingLog returns the newest entries first. A non-positive limit
// returns every entry; modelName filters when not empty.
func (h *History) LoadTrainingLog(ctx context.Context, modelName string, limit int) ([]TrainingLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := h.database.QueryContext(ctx, `
        SELECT model_name, source, accuracy, train_rows, test_rows, trained_at
        FROM training_log
        WHERE ? = '' OR model_name = ?
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, modelName, modelName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var accuracy sql.NullFloat64
		if err := rows.Scan(&log.ModelName, &log.Source, &accuracy, &log.TrainRows, &log.TestRows, &log.TrainedAt); err != nil {
			return nil, err
		}
		if accuracy.Valid {
			value := accuracy.Float64
			log.Accuracy = &value
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
