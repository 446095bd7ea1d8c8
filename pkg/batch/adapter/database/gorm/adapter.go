// Package gorm implements the database abstraction on top of GORM.
package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// TableNamer is implemented by entities that name their own table.
type TableNamer interface {
	TableName() string
}

// applyTableName scopes db to the table of model, looking through pointers and slices
// for a TableNamer.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}
	val := reflect.ValueOf(model)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	if val.Kind() == reflect.Slice || val.Kind() == reflect.Array {
		elemType := val.Type().Elem()
		if elemType.Kind() == reflect.Ptr {
			elemType = elemType.Elem()
		}
		if namer, ok := reflect.New(elemType).Interface().(TableNamer); ok {
			return db.Table(namer.TableName())
		}
	}
	return db.Model(model)
}

// NewGormLogger creates a GORM logger writing through the batch logger.
func NewGormLogger(level string) gormlogger.Interface {
	var gormLevel gormlogger.LogLevel
	switch config.LogLevel(strings.ToUpper(level)) {
	case config.LogLevelError:
		gormLevel = gormlogger.Error
	case config.LogLevelWarn:
		gormLevel = gormlogger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		gormLevel = gormlogger.Info
	default:
		gormLevel = gormlogger.Silent
	}
	return gormlogger.New(
		NewGormWriter(),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM output to the batch logger. Statements go to DEBUG.
type GormWriter struct{}

// NewGormWriter creates a new GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gormlogger.Writer.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatement(msg) {
		logger.Debugf("[GORM] %s", msg)
		return
	}
	logger.Infof("[GORM] %s", msg)
}

func isStatement(msg string) bool {
	upper := strings.ToUpper(msg)
	for _, kw := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// GormDBAdapter implements database.DBConnection.
type GormDBAdapter struct {
	db     *gorm.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter wraps an open *gorm.DB.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) *GormDBAdapter {
	return &GormDBAdapter{db: db, cfg: cfg, dbType: cfg.Type, name: name}
}

// GetGormDB returns the underlying *gorm.DB.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

// Close closes the underlying connection pool.
func (a *GormDBAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Type implements database.DBConnection.
func (a *GormDBAdapter) Type() string {
	return a.dbType
}

// Name implements database.DBConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	return a.db.DB()
}

// IsTableNotExistError implements database.DBConnection.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return isTableNotExistError(err)
}

func isTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return (strings.Contains(msg, "relation \"") && strings.Contains(msg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(msg, "Error 1146") && strings.Contains(msg, "doesn't exist")) || // MySQL
		strings.Contains(msg, "no such table:") // SQLite
}

// ExecuteQuery implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(query) > 0 {
		db = db.Where(query)
	}
	return db.Find(target).Error
}

// ExecuteQueryAdvanced implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := applyTableName(a.db.WithContext(ctx), target)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

// ExecuteKeysetQuery implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteKeysetQuery(ctx context.Context, target interface{}, tableName string, keyColumn string, afterKey interface{}, limit int) error {
	db := a.db.WithContext(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	} else {
		db = applyTableName(db, target)
	}
	if afterKey != nil {
		db = db.Where(clause.Gt{Column: clause.Column{Name: keyColumn}, Value: afterKey})
	}
	db = db.Order(clause.OrderByColumn{Column: clause.Column{Name: keyColumn}})
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

// Count implements database.DBExecutor.
func (a *GormDBAdapter) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	db := applyTableName(a.db.WithContext(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Pluck implements database.DBExecutor.
func (a *GormDBAdapter) Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error {
	db := applyTableName(a.db.WithContext(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	return db.Distinct().Pluck(column, target).Error
}

// ExecuteUpdate implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return executeUpdate(a.db.WithContext(ctx), model, operation, tableName, query)
}

// ExecuteUpsert implements database.DBExecutor.
func (a *GormDBAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return executeUpsert(a.db.WithContext(ctx), model, tableName, conflictColumns, updateColumns)
}

// executeUpdate is shared by the connection and the transaction adapters.
// For UPDATE, model is a map of column values or a struct whose non-zero fields are written.
func executeUpdate(db *gorm.DB, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		result = db.Create(model)
	case "UPDATE":
		if tableName == "" {
			db = applyTableName(db, model)
		}
		result = db.Where(query).Updates(model)
	case "DELETE":
		if len(query) > 0 {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func executeUpsert(db *gorm.DB, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	if tableName != "" {
		db = db.Table(tableName)
	}
	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}
	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
