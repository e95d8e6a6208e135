package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ts4z/rungs/dbutil"
	"github.com/ts4z/rungs/defaults"
	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
)

//go:embed schema.sql
var schema string

// DBStorage keeps everything in Postgres.
type DBStorage struct {
	db *sql.DB
}

var (
	_ LadderStorage = &DBStorage{}
	_ SiteStorage   = &DBStorage{}
	_ UserStorage   = &DBStorage{}
)

// NewDBStorage wraps an open database, as from dbutil.Connect.
func NewDBStorage(ctx context.Context, db *sql.DB) (*DBStorage, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("can't reach database: %w", err)
	}
	return &DBStorage{db: db}, nil
}

func (s *DBStorage) Close() {
	s.db.Close()
}

// DB is the underlying handle, which dbnotify also needs.
func (s *DBStorage) DB() *sql.DB {
	return s.db
}

// Init creates the tables and triggers if they don't exist.
func (s *DBStorage) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *DBStorage) FetchGames(ctx context.Context) ([]*model.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id, name, banner FROM games ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	games := []*model.Game{}
	for rows.Next() {
		g := &model.Game{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Banner); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *DBStorage) FetchGame(ctx context.Context, id int64) (*model.Game, error) {
	g := &model.Game{}
	err := s.db.QueryRowContext(ctx, `SELECT game_id, name, banner FROM games WHERE game_id=$1`, id).
		Scan(&g.ID, &g.Name, &g.Banner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, he.HTTPCodedErrorf(404, "no such game %d", id)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *DBStorage) FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, game_id, name, released_on FROM game_versions WHERE game_id=$1 ORDER BY released_on DESC, version_id DESC`,
		gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := []*model.GameVersion{}
	for rows.Next() {
		v := &model.GameVersion{}
		if err := rows.Scan(&v.ID, &v.GameID, &v.Name, &v.Date); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *DBStorage) FetchVersion(ctx context.Context, versionID int64) (*model.GameVersion, error) {
	v := &model.GameVersion{}
	err := s.db.QueryRowContext(ctx,
		`SELECT version_id, game_id, name, released_on FROM game_versions WHERE version_id=$1`, versionID).
		Scan(&v.ID, &v.GameID, &v.Name, &v.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, he.HTTPCodedErrorf(404, "no such version %d", versionID)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// FetchLadder reads ranks and tiers in one query; the LEFT JOIN keeps ranks
// without tiers.
func (s *DBStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.rank_id, r.name, r.color, r.badge, r.rank_order,
       t.tier_id, t.name, t.badge, t.percentile, t.tier_order
  FROM ranks r LEFT JOIN tiers t ON t.rank_id = r.rank_id
 WHERE r.version_id = $1
 ORDER BY r.rank_order, r.rank_id, t.tier_order, t.tier_id`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	l := &model.Ladder{VersionID: versionID, Ranks: []*model.Rank{}}
	var cur *model.Rank
	for rows.Next() {
		var (
			r                   model.Rank
			tierID, tierOrder   sql.NullInt64
			tierName, tierBadge sql.NullString
			percentile          sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Color, &r.Badge, &r.Order,
			&tierID, &tierName, &tierBadge, &percentile, &tierOrder); err != nil {
			return nil, err
		}
		if cur == nil || cur.ID != r.ID {
			r.VersionID = versionID
			r.Tiers = []*model.Tier{}
			cur = &r
			l.Ranks = append(l.Ranks, cur)
		}
		if !tierID.Valid {
			continue
		}
		t := &model.Tier{
			ID:    tierID.Int64,
			Name:  tierName.String,
			Badge: tierBadge.String,
			Order: int(tierOrder.Int64),
		}
		if percentile.Valid {
			p := percentile.Float64
			t.Percentile = &p
		}
		cur.Tiers = append(cur.Tiers, t)
	}
	return l, rows.Err()
}

func (s *DBStorage) FetchOverview(ctx context.Context) (*model.Overview, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT g.game_id, g.name, COUNT(v.version_id)
  FROM games g LEFT JOIN game_versions v ON v.game_id = g.game_id
 GROUP BY g.game_id, g.name
 ORDER BY g.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overview := &model.Overview{}
	for rows.Next() {
		var slug model.GameSlug
		if err := rows.Scan(&slug.GameID, &slug.Name, &slug.VersionCount); err != nil {
			log.Printf("Row scan failed: %v", err)
			continue
		}
		overview.Slugs = append(overview.Slugs, slug)
	}
	return overview, rows.Err()
}

func (s *DBStorage) CreateGame(ctx context.Context, g *model.Game) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO games (name, banner) VALUES ($1, $2) RETURNING game_id`, g.Name, g.Banner).Scan(&id)
	return id, err
}

func (s *DBStorage) DeleteGame(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE game_id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return he.HTTPCodedErrorf(404, "no such game %d", id)
	}
	return nil
}

func (s *DBStorage) CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO game_versions (game_id, name, released_on) VALUES ($1, $2, $3) RETURNING version_id`,
		v.GameID, v.Name, v.Date).Scan(&id)
	return id, err
}

func (s *DBStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	return dbutil.InTx(ctx, s.db, func(tx *dbutil.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM game_versions WHERE version_id=$1)`, l.VersionID).
			Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return he.HTTPCodedErrorf(404, "no such version %d", l.VersionID)
		}

		// Tiers go with their ranks.
		if _, err := tx.Exec(ctx, `DELETE FROM ranks WHERE version_id=$1`, l.VersionID); err != nil {
			return err
		}
		for i, r := range l.Ranks {
			var rankID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO ranks (version_id, name, color, badge, rank_order) VALUES ($1, $2, $3, $4, $5) RETURNING rank_id`,
				l.VersionID, r.Name, r.Color, r.Badge, i).Scan(&rankID); err != nil {
				return fmt.Errorf("rank %q: %w", r.Name, err)
			}
			for j, t := range r.Tiers {
				if _, err := tx.Exec(ctx,
					`INSERT INTO tiers (rank_id, name, badge, percentile, tier_order) VALUES ($1, $2, $3, $4, $5)`,
					rankID, t.Name, t.Badge, t.Percentile, j); err != nil {
					return fmt.Errorf("rank %q tier %q: %w", r.Name, t.Name, err)
				}
			}
		}
		return nil
	})
}

func (s *DBStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	var bytes []byte
	err := s.db.QueryRowContext(ctx, `SELECT model_data FROM site_config WHERE site_config_id=1`).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return defaults.SiteConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	config := &model.SiteConfig{}
	if err := json.Unmarshal(bytes, config); err != nil {
		return nil, fmt.Errorf("can't decode site config: %w", err)
	}
	return config, nil
}

func (s *DBStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	bytes, err := json.Marshal(config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO site_config (site_config_id, model_data) VALUES (1, $1)
ON CONFLICT (site_config_id) DO UPDATE SET model_data = EXCLUDED.model_data`, bytes)
	return err
}

func (s *DBStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, nick, email, is_admin FROM users ORDER BY nick`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*model.UserIdentity{}
	for rows.Next() {
		u := &model.UserIdentity{}
		if err := rows.Scan(&u.ID, &u.Nick, &u.Email, &u.IsAdmin); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *DBStorage) CreateUser(ctx context.Context, nick string, emailAddress string, passwordHash string, isAdmin bool) error {
	return dbutil.InTx(ctx, s.db, func(tx *dbutil.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO users (nick, email, is_admin) VALUES ($1, $2, $3) RETURNING user_id`,
			nick, emailAddress, isAdmin).Scan(&id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO passwords (user_id, hashed_password) VALUES ($1, $2)`, id, passwordHash)
		return err
	})
}

func (s *DBStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	u := &model.UserIdentity{}
	err := s.db.QueryRowContext(ctx, `SELECT user_id, nick, email, is_admin FROM users WHERE user_id=$1`, id).
		Scan(&u.ID, &u.Nick, &u.Email, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, he.HTTPCodedErrorf(404, "no such user %d", id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *DBStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	row := &model.UserRow{}
	err := s.db.QueryRowContext(ctx, `SELECT user_id, nick, email, is_admin FROM users WHERE nick=$1`, nick).
		Scan(&row.ID, &row.Nick, &row.Email, &row.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, he.HTTPCodedErrorf(404, "no such user %q", nick)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT hashed_password, expires FROM passwords WHERE user_id=$1`, row.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ph model.PasswordHash
		var expires sql.NullTime
		if err := rows.Scan(&ph.Hash, &expires); err != nil {
			return nil, err
		}
		if expires.Valid {
			t := expires.Time
			ph.ExpiresAt = &t
		}
		row.Passwords = append(row.Passwords, ph)
	}
	return row, rows.Err()
}

func (s *DBStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE nick=$1`, nick)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n != 1 {
		return he.HTTPCodedErrorf(404, "no such user %q", nick)
	}
	return nil
}

func (s *DBStorage) AddPassword(ctx context.Context, userID int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO passwords (user_id, hashed_password) VALUES ($1, $2)`, userID, passwordHash)
	return err
}

func (s *DBStorage) RemoveExpiredPasswords(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM passwords WHERE expires IS NOT NULL AND expires < $1`, before)
	return err
}

// ReplacePassword adds a new password and sets the old ones to expire.  The
// old ones keep working until then, so a typo isn't a lockout.
func (s *DBStorage) ReplacePassword(ctx context.Context, userID int64, newPasswordHash string, oldPasswordsExpire time.Time) error {
	return dbutil.InTx(ctx, s.db, func(tx *dbutil.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE passwords SET expires=$2 WHERE user_id=$1 AND (expires IS NULL OR expires > $2)`,
			userID, oldPasswordsExpire); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO passwords (user_id, hashed_password) VALUES ($1, $2)`, userID, newPasswordHash)
		return err
	})
}
