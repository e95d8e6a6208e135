package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ts4z/rungs/defaults"
	"github.com/ts4z/rungs/he"
	"github.com/ts4z/rungs/model"
)

type gameRow struct {
	ID     int64  `gorm:"primaryKey;column:game_id"`
	Name   string `gorm:"uniqueIndex;not null"`
	Banner string `gorm:"not null;default:''"`
}

func (gameRow) TableName() string { return "games" }

type versionRow struct {
	ID         int64     `gorm:"primaryKey;column:version_id"`
	GameID     int64     `gorm:"index;not null"`
	Name       string    `gorm:"not null"`
	ReleasedOn time.Time `gorm:"not null"`
}

func (versionRow) TableName() string { return "game_versions" }

type rankRow struct {
	ID        int64  `gorm:"primaryKey;column:rank_id"`
	VersionID int64  `gorm:"index;not null"`
	Name      string `gorm:"not null"`
	Color     string
	Badge     string
	RankOrder int
	Tiers     []tierRow `gorm:"foreignKey:RankID"`
}

func (rankRow) TableName() string { return "ranks" }

type tierRow struct {
	ID         int64  `gorm:"primaryKey;column:tier_id"`
	RankID     int64  `gorm:"index;not null"`
	Name       string `gorm:"not null"`
	Badge      string
	Percentile *float64
	TierOrder  int
}

func (tierRow) TableName() string { return "tiers" }

type userRow struct {
	ID        int64  `gorm:"primaryKey;column:user_id"`
	Nick      string `gorm:"uniqueIndex;not null"`
	Email     string
	IsAdmin   bool
	Passwords []passwordRow `gorm:"foreignKey:UserID"`
}

func (userRow) TableName() string { return "users" }

type passwordRow struct {
	ID             int64 `gorm:"primaryKey"`
	UserID         int64 `gorm:"index;not null"`
	HashedPassword string
	Expires        *time.Time
}

func (passwordRow) TableName() string { return "passwords" }

type siteConfigRow struct {
	ID        int `gorm:"primaryKey;column:site_config_id"`
	ModelData []byte
}

func (siteConfigRow) TableName() string { return "site_config" }

// GormStorage keeps everything in a SQLite file.  It is meant for a single
// server process; there is no change notification.
type GormStorage struct {
	db *gorm.DB
}

var (
	_ LadderStorage = &GormStorage{}
	_ SiteStorage   = &GormStorage{}
	_ UserStorage   = &GormStorage{}
)

// NewGormStorage opens (creating if needed) the SQLite database at path and
// migrates the schema.
func NewGormStorage(path string) (*GormStorage, error) {
	gormLogger := logger.New(
		log.Default(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("can't open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&gameRow{}, &versionRow{}, &rankRow{}, &tierRow{},
		&userRow{}, &passwordRow{}, &siteConfigRow{}); err != nil {
		return nil, fmt.Errorf("can't migrate %s: %w", path, err)
	}
	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Close() {
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func notFound(err error, f string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return he.HTTPCodedErrorf(404, f, args...)
	}
	return err
}

func (s *GormStorage) FetchGames(ctx context.Context) ([]*model.Game, error) {
	var rows []gameRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	games := make([]*model.Game, len(rows))
	for i, r := range rows {
		games[i] = &model.Game{ID: r.ID, Name: r.Name, Banner: r.Banner}
	}
	return games, nil
}

func (s *GormStorage) FetchGame(ctx context.Context, id int64) (*model.Game, error) {
	var r gameRow
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "no such game %d", id)
	}
	return &model.Game{ID: r.ID, Name: r.Name, Banner: r.Banner}, nil
}

func versionFromRow(r *versionRow) *model.GameVersion {
	return &model.GameVersion{ID: r.ID, GameID: r.GameID, Name: r.Name, Date: r.ReleasedOn}
}

func (s *GormStorage) FetchVersions(ctx context.Context, gameID int64) ([]*model.GameVersion, error) {
	var rows []versionRow
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("released_on DESC, version_id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	versions := make([]*model.GameVersion, len(rows))
	for i := range rows {
		versions[i] = versionFromRow(&rows[i])
	}
	return versions, nil
}

func (s *GormStorage) FetchVersion(ctx context.Context, versionID int64) (*model.GameVersion, error) {
	var r versionRow
	if err := s.db.WithContext(ctx).First(&r, versionID).Error; err != nil {
		return nil, notFound(err, "no such version %d", versionID)
	}
	return versionFromRow(&r), nil
}

func (s *GormStorage) FetchLadder(ctx context.Context, versionID int64) (*model.Ladder, error) {
	var rows []rankRow
	err := s.db.WithContext(ctx).
		Preload("Tiers", func(db *gorm.DB) *gorm.DB { return db.Order("tier_order, tier_id") }).
		Where("version_id = ?", versionID).
		Order("rank_order, rank_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	l := &model.Ladder{VersionID: versionID, Ranks: make([]*model.Rank, len(rows))}
	for i, r := range rows {
		rank := &model.Rank{
			ID:        r.ID,
			VersionID: r.VersionID,
			Name:      r.Name,
			Color:     r.Color,
			Badge:     r.Badge,
			Order:     r.RankOrder,
			Tiers:     make([]*model.Tier, len(r.Tiers)),
		}
		for j, t := range r.Tiers {
			rank.Tiers[j] = &model.Tier{
				ID:         t.ID,
				Name:       t.Name,
				Badge:      t.Badge,
				Percentile: t.Percentile,
				Order:      t.TierOrder,
			}
		}
		l.Ranks[i] = rank
	}
	return l, nil
}

func (s *GormStorage) FetchOverview(ctx context.Context) (*model.Overview, error) {
	var slugs []model.GameSlug
	err := s.db.WithContext(ctx).Model(&gameRow{}).
		Select("games.game_id AS game_id, games.name AS name, COUNT(game_versions.version_id) AS version_count").
		Joins("LEFT JOIN game_versions ON game_versions.game_id = games.game_id").
		Group("games.game_id, games.name").
		Order("games.name").
		Scan(&slugs).Error
	if err != nil {
		return nil, err
	}
	return &model.Overview{Slugs: slugs}, nil
}

func (s *GormStorage) CreateGame(ctx context.Context, g *model.Game) (int64, error) {
	r := gameRow{Name: g.Name, Banner: g.Banner}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (s *GormStorage) DeleteGame(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		versions := tx.Model(&versionRow{}).Select("version_id").Where("game_id = ?", id)
		ranks := tx.Model(&rankRow{}).Select("rank_id").Where("version_id IN (?)", versions)
		if err := tx.Where("rank_id IN (?)", ranks).Delete(&tierRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id IN (?)", versions).Delete(&rankRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("game_id = ?", id).Delete(&versionRow{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&gameRow{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return he.HTTPCodedErrorf(404, "no such game %d", id)
		}
		return nil
	})
}

func (s *GormStorage) CreateVersion(ctx context.Context, v *model.GameVersion) (int64, error) {
	if _, err := s.FetchGame(ctx, v.GameID); err != nil {
		return 0, err
	}
	r := versionRow{GameID: v.GameID, Name: v.Name, ReleasedOn: v.Date}
	if err := s.db.WithContext(ctx).Create(&r).Error; err != nil {
		return 0, err
	}
	return r.ID, nil
}

func (s *GormStorage) SaveLadder(ctx context.Context, l *model.Ladder) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v versionRow
		if err := tx.First(&v, l.VersionID).Error; err != nil {
			return notFound(err, "no such version %d", l.VersionID)
		}

		old := tx.Model(&rankRow{}).Select("rank_id").Where("version_id = ?", l.VersionID)
		if err := tx.Where("rank_id IN (?)", old).Delete(&tierRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("version_id = ?", l.VersionID).Delete(&rankRow{}).Error; err != nil {
			return err
		}

		for i, r := range l.Ranks {
			row := rankRow{
				VersionID: l.VersionID,
				Name:      r.Name,
				Color:     r.Color,
				Badge:     r.Badge,
				RankOrder: i,
			}
			for j, t := range r.Tiers {
				var p *float64
				if t.Percentile != nil {
					v := *t.Percentile
					p = &v
				}
				row.Tiers = append(row.Tiers, tierRow{Name: t.Name, Badge: t.Badge, Percentile: p, TierOrder: j})
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("rank %q: %w", r.Name, err)
			}
		}
		return nil
	})
}

func (s *GormStorage) FetchSiteConfig(ctx context.Context) (*model.SiteConfig, error) {
	var r siteConfigRow
	err := s.db.WithContext(ctx).First(&r, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaults.SiteConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	config := &model.SiteConfig{}
	if err := json.Unmarshal(r.ModelData, config); err != nil {
		return nil, fmt.Errorf("can't decode site config: %w", err)
	}
	return config, nil
}

func (s *GormStorage) SaveSiteConfig(ctx context.Context, config *model.SiteConfig) error {
	bytes, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&siteConfigRow{ID: 1, ModelData: bytes}).Error
}

func (s *GormStorage) FetchUsers(ctx context.Context) ([]*model.UserIdentity, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("nick").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]*model.UserIdentity, len(rows))
	for i, r := range rows {
		users[i] = &model.UserIdentity{ID: r.ID, Nick: r.Nick, Email: r.Email, IsAdmin: r.IsAdmin}
	}
	return users, nil
}

func (s *GormStorage) CreateUser(ctx context.Context, nick string, emailAddress string, passwordHash string, isAdmin bool) error {
	r := userRow{
		Nick:      nick,
		Email:     emailAddress,
		IsAdmin:   isAdmin,
		Passwords: []passwordRow{{HashedPassword: passwordHash}},
	}
	return s.db.WithContext(ctx).Create(&r).Error
}

func (s *GormStorage) FetchUserByUserID(ctx context.Context, id int64) (*model.UserIdentity, error) {
	var r userRow
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, notFound(err, "no such user %d", id)
	}
	return &model.UserIdentity{ID: r.ID, Nick: r.Nick, Email: r.Email, IsAdmin: r.IsAdmin}, nil
}

func (s *GormStorage) FetchUserRow(ctx context.Context, nick string) (*model.UserRow, error) {
	var r userRow
	if err := s.db.WithContext(ctx).Preload("Passwords").Where("nick = ?", nick).First(&r).Error; err != nil {
		return nil, notFound(err, "no such user %q", nick)
	}
	row := &model.UserRow{
		UserIdentity: model.UserIdentity{ID: r.ID, Nick: r.Nick, Email: r.Email, IsAdmin: r.IsAdmin},
	}
	for _, p := range r.Passwords {
		row.Passwords = append(row.Passwords, model.PasswordHash{Hash: p.HashedPassword, ExpiresAt: p.Expires})
	}
	return row, nil
}

func (s *GormStorage) DeleteUserByNick(ctx context.Context, nick string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r userRow
		if err := tx.Where("nick = ?", nick).First(&r).Error; err != nil {
			return notFound(err, "no such user %q", nick)
		}
		if err := tx.Where("user_id = ?", r.ID).Delete(&passwordRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&r).Error
	})
}

func (s *GormStorage) AddPassword(ctx context.Context, userID int64, passwordHash string) error {
	return s.db.WithContext(ctx).Create(&passwordRow{UserID: userID, HashedPassword: passwordHash}).Error
}

func (s *GormStorage) RemoveExpiredPasswords(ctx context.Context, before time.Time) error {
	return s.db.WithContext(ctx).Where("expires IS NOT NULL AND expires < ?", before).Delete(&passwordRow{}).Error
}

func (s *GormStorage) ReplacePassword(ctx context.Context, userID int64, newPasswordHash string, oldPasswordsExpire time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&passwordRow{}).
			Where("user_id = ? AND (expires IS NULL OR expires > ?)", userID, oldPasswordsExpire).
			Update("expires", oldPasswordsExpire).Error; err != nil {
			return err
		}
		return tx.Create(&passwordRow{UserID: userID, HashedPassword: newPasswordHash}).Error
	})
}
