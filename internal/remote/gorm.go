package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"edwinliby/xpense-sync/internal/models"
	"edwinliby/xpense-sync/internal/syncerror"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Supported gorm drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// GormBackend implements Backend on a relational database through gorm.
type GormBackend struct {
	db *gorm.DB
}

// OpenGorm connects to the database identified by driver and dsn and migrates
// the four collections.
func OpenGorm(driver, dsn string) (*GormBackend, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// Date columns must scan into time.Time.
		cfg.ParseTime = true
		dialector = mysql.Open(cfg.FormatDSN())
	default:
		return nil, fmt.Errorf("unsupported remote driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote database: %w", err)
	}
	return NewGormBackend(db)
}

// NewGormBackend wraps an existing connection and migrates the schema.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&transactionRow{}, &categoryRow{}, &settingRow{}, &achievementRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormBackend{db: db}, nil
}

// Close releases the underlying connection pool.
func (g *GormBackend) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ownerConflict upserts on the (owner_id, id) key so a write never takes over
// another owner's row.
var ownerConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "owner_id"}, {Name: "id"}},
	UpdateAll: true,
}

func remoteErr(op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &syncerror.RemoteError{Op: op, Collection: collection, ID: id, Err: err}
}

func (g *GormBackend) InsertTransaction(ctx context.Context, owner string, tx models.Transaction) error {
	row := newTransactionRow(owner, tx)
	err := g.db.WithContext(ctx).Clauses(ownerConflict).Create(&row).Error
	return remoteErr("insert", CollectionTransactions, tx.ID, err)
}

func (g *GormBackend) UpdateTransaction(ctx context.Context, owner string, tx models.Transaction) error {
	row := newTransactionRow(owner, tx)
	err := g.db.WithContext(ctx).Model(&transactionRow{}).
		Where("id = ? AND owner_id = ?", tx.ID, owner).
		Select("*").Updates(&row).Error
	return remoteErr("update", CollectionTransactions, tx.ID, err)
}

func (g *GormBackend) DeleteTransaction(ctx context.Context, owner, id string) error {
	err := g.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).Delete(&transactionRow{}).Error
	return remoteErr("delete", CollectionTransactions, id, err)
}

func (g *GormBackend) FetchTransactions(ctx context.Context, owner string) ([]models.Transaction, error) {
	var rows []transactionRow
	if err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Order("date DESC").Find(&rows).Error; err != nil {
		return nil, remoteErr("fetch", CollectionTransactions, "", err)
	}
	out := make([]models.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (g *GormBackend) InsertCategory(ctx context.Context, owner string, c models.Category) error {
	row := newCategoryRow(owner, c)
	err := g.db.WithContext(ctx).Clauses(ownerConflict).Create(&row).Error
	return remoteErr("insert", CollectionCategories, c.ID, err)
}

func (g *GormBackend) UpdateCategory(ctx context.Context, owner string, c models.Category) error {
	row := newCategoryRow(owner, c)
	err := g.db.WithContext(ctx).Model(&categoryRow{}).
		Where("id = ? AND owner_id = ?", c.ID, owner).
		Select("*").Updates(&row).Error
	return remoteErr("update", CollectionCategories, c.ID, err)
}

func (g *GormBackend) DeleteCategory(ctx context.Context, owner, id string) error {
	err := g.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, owner).Delete(&categoryRow{}).Error
	return remoteErr("delete", CollectionCategories, id, err)
}

func (g *GormBackend) FetchCategories(ctx context.Context, owner string) ([]models.Category, error) {
	var rows []categoryRow
	if err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Order("name").Find(&rows).Error; err != nil {
		return nil, remoteErr("fetch", CollectionCategories, "", err)
	}
	out := make([]models.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (g *GormBackend) UpsertSetting(ctx context.Context, owner, key string, value json.RawMessage) error {
	row := settingRow{OwnerID: owner, Key: key, Value: string(value)}
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
	return remoteErr("upsert", CollectionSettings, key, err)
}

func (g *GormBackend) FetchSettings(ctx context.Context, owner string) (map[string]json.RawMessage, error) {
	var rows []settingRow
	if err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Find(&rows).Error; err != nil {
		return nil, remoteErr("fetch", CollectionSettings, "", err)
	}
	out := make(map[string]json.RawMessage, len(rows))
	for _, r := range rows {
		out[r.Key] = rawSetting(r.Value)
	}
	return out, nil
}

func (g *GormBackend) UpsertAchievements(ctx context.Context, owner string, achievements []models.Achievement) error {
	if len(achievements) == 0 {
		return nil
	}
	rows := make([]achievementRow, 0, len(achievements))
	for _, a := range achievements {
		rows = append(rows, achievementRow{OwnerID: owner, ID: a.ID, Progress: a.Progress, UnlockedAt: utcPtr(a.UnlockedAt)})
	}
	err := g.db.WithContext(ctx).Clauses(ownerConflict).Create(&rows).Error
	return remoteErr("upsert", CollectionAchievements, "", err)
}

func (g *GormBackend) FetchAchievements(ctx context.Context, owner string) ([]models.Achievement, error) {
	var rows []achievementRow
	if err := g.db.WithContext(ctx).Where("owner_id = ?", owner).Order("id").Find(&rows).Error; err != nil {
		return nil, remoteErr("fetch", CollectionAchievements, "", err)
	}
	out := make([]models.Achievement, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}
