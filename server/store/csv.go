package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nathanbos/mixed-motive-games/server/game"
)

// WriteGameCSV writes the full round log of a finished game to
// <dir>/<gameID>_<timestamp>.csv and returns the path. One row per round
// log entry, in log order.
func WriteGameCSV(dir string, snap game.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.csv", snap.ID, snap.CreatedAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"round", "player_id", "player_name", "player_kind", "decision", "payoff", "contribution", "statement", "rationale"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, r := range snap.Records {
		row := []string{
			strconv.Itoa(r.Round),
			r.PlayerID,
			r.PlayerName,
			string(r.PlayerKind),
			strconv.FormatFloat(r.Decision, 'f', -1, 64),
			strconv.FormatFloat(r.Payoff, 'f', 2, 64),
			string(r.Contribution),
			r.Statement,
			r.Rationale,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return path, nil
}

// FindGameCSV locates the timestamped CSV for a game id in dir.
func FindGameCSV(dir, gameID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".csv" && len(name) > len(gameID) && name[:len(gameID)] == gameID {
			return filepath.Join(dir, name), nil
		}
	}
	return "", fmt.Errorf("record for %s: %w", gameID, ErrNotFound)
}
