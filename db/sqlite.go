package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// TrainingLog is one completed training run.
type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	ModelPath  string    `json:"model_path"`
	RMSE       float64   `json:"rmse"`
	MAE        float64   `json:"mae"`
	R2         float64   `json:"r2"`
	DataPoints int       `json:"data_points"`
	Seed       int64     `json:"seed"`
	TrainedAt  time.Time `json:"trained_at"`
}

// InitDB initializes the SQLite database
func InitDB(path string) error {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        model_path TEXT,
        rmse REAL,
        mae REAL,
        r2 REAL,
        data_points INTEGER,
        seed INTEGER,
        trained_at DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_training_log_trained_at ON training_log(trained_at);`
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return err
	}

	if database != nil {
		database.Close()
	}
	database = conn
	return nil
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

func SaveTrainingLog(entry TrainingLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now()
	}
	_, err := database.Exec(`
        INSERT INTO training_log (
            model_name, model_path, rmse, mae, r2, data_points, seed, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName,
		entry.ModelPath,
		entry.RMSE,
		entry.MAE,
		entry.R2,
		entry.DataPoints,
		entry.Seed,
		entry.TrainedAt.UTC(),
	)
	return err
}

// LoadTrainingLog returns the most recent runs first; limit <= 0 returns all.
func LoadTrainingLog(limit int) ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := database.Query(`
        SELECT model_name, model_path, rmse, mae, r2, data_points, seed, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.ModelPath, &log.RMSE, &log.MAE, &log.R2, &log.DataPoints, &log.Seed, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
