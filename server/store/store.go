package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nathanbos/mixed-motive-games/server/game"
)

//go:embed schema.sql
var schema embed.FS

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// DB wraps the pgx pool. RecordsDir is where finished-game CSVs land.
type DB struct {
	*pgxpool.Pool
	RecordsDir string
}

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{Pool: p, RecordsDir: "records"}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Roster
------------------------------*/

// ListPlayers loads the durable roster (participants surviving across games).
func (db *DB) ListPlayers(ctx context.Context) ([]*game.Participant, error) {
	rows, err := db.Query(ctx, `
        SELECT id, name, kind, bank, personality, strategy, provider, model
          FROM players
         ORDER BY name
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*game.Participant
	for rows.Next() {
		p := &game.Participant{}
		var kind string
		if err := rows.Scan(&p.ID, &p.Name, &kind, &p.Bank, &p.Personality, &p.Strategy, &p.Provider, &p.Model); err != nil {
			return nil, err
		}
		p.Kind = game.Kind(kind)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlayer fetches one roster player by id.
func (db *DB) GetPlayer(ctx context.Context, id string) (*game.Participant, error) {
	p := &game.Participant{}
	var kind string
	err := db.QueryRow(ctx, `
        SELECT id, name, kind, bank, personality, strategy, provider, model
          FROM players WHERE id = $1
    `, id).Scan(&p.ID, &p.Name, &kind, &p.Bank, &p.Personality, &p.Strategy, &p.Provider, &p.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.Kind = game.Kind(kind)
	return p, nil
}

// UpsertPlayer stores a roster player, keyed by name.
func (db *DB) UpsertPlayer(ctx context.Context, p *game.Participant) error {
	_, err := db.Exec(ctx, `
        INSERT INTO players(id, name, kind, bank, personality, strategy, provider, model)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (name) DO UPDATE
          SET bank = EXCLUDED.bank,
              personality = EXCLUDED.personality,
              strategy = EXCLUDED.strategy,
              provider = EXCLUDED.provider,
              model = EXCLUDED.model,
              updated_at = now()
    `, p.ID, p.Name, string(p.Kind), p.Bank, p.Personality, p.Strategy, p.Provider, p.Model)
	return err
}

// SaveFinalBanks writes the end-of-game banks back to the roster. Unknown
// ids (ad-hoc humans, one-off personality agents) are skipped silently.
func (db *DB) SaveFinalBanks(ctx context.Context, banks map[string]float64) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // safe if already committed

	for id, bank := range banks {
		if _, err := tx.Exec(ctx, `
            UPDATE players SET bank = $2, updated_at = now() WHERE id = $1
        `, id, bank); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// Personality is a preset persona offered on the setup page.
type Personality struct {
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
}

func (db *DB) ListPersonalities(ctx context.Context) ([]Personality, error) {
	rows, err := db.Query(ctx, `SELECT name, strategy FROM personalities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Personality
	for rows.Next() {
		var p Personality
		if err := rows.Scan(&p.Name, &p.Strategy); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

/* -----------------------------
   Games & round records
------------------------------*/

// InsertGame records a game at creation time.
func (db *DB) InsertGame(ctx context.Context, snap game.Snapshot) error {
	_, err := db.Exec(ctx, `
        INSERT INTO games(id, created_at, rounds, ceiling, multiplier)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO NOTHING
    `, snap.ID, snap.CreatedAt, snap.Config.Rounds, snap.Config.Ceiling, snap.Config.Multiplier)
	return err
}

// AppendRoundRecords mirrors one completed round. Implements game.RecordSink.
func (db *DB) AppendRoundRecords(ctx context.Context, gameID string, recs []game.RoundRecord) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range recs {
		if _, err := tx.Exec(ctx, `
            INSERT INTO round_records(
                game_id, round, player_id, player_name, player_kind,
                decision, payoff, contribution, statement, rationale
            ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        `, gameID, r.Round, r.PlayerID, r.PlayerName, string(r.PlayerKind),
			r.Decision, r.Payoff, string(r.Contribution), r.Statement, r.Rationale); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ExportGame marks the game complete and writes its CSV record. Implements
// game.RecordSink; called exactly once, at the final discussion transition.
func (db *DB) ExportGame(ctx context.Context, snap game.Snapshot) error {
	if _, err := db.Exec(ctx, `
        UPDATE games SET completed_at = now() WHERE id = $1
    `, snap.ID); err != nil {
		return err
	}
	_, err := WriteGameCSV(db.RecordsDir, snap)
	return err
}

/* -----------------------------
   Sessions
------------------------------*/

// SaveSession stores a serialized game snapshot under a session token.
func (db *DB) SaveSession(ctx context.Context, token string, snap game.Snapshot) error {
	blob, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
        INSERT INTO sessions(token, game_state, updated_at)
        VALUES ($1,$2,now())
        ON CONFLICT (token) DO UPDATE
          SET game_state = EXCLUDED.game_state, updated_at = now()
    `, token, blob)
	return err
}

// LoadSession fetches and decodes the snapshot for a session token.
func (db *DB) LoadSession(ctx context.Context, token string) (game.Snapshot, error) {
	var blob []byte
	err := db.QueryRow(ctx, `SELECT game_state FROM sessions WHERE token = $1`, token).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return game.Snapshot{}, fmt.Errorf("session %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return game.Snapshot{}, err
	}
	var snap game.Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return game.Snapshot{}, err
	}
	return snap, nil
}

func (db *DB) DeleteSession(ctx context.Context, token string) error {
	_, err := db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// PruneSessions drops sessions idle longer than the given age.
func (db *DB) PruneSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM sessions WHERE updated_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
