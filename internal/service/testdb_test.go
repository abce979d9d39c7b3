package service

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/pagesmith/internal/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq atomic.Int64

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:service-test-%d?mode=memory&cache=shared", testDBSeq.Add(1))
	gdb, err := db.Open(db.DriverSQLite, dsn, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, username string) *db.User {
	t.Helper()
	user := db.User{Username: username}
	require.NoError(t, gdb.Create(&user).Error)
	return &user
}

func seedSite(t *testing.T, gdb *gorm.DB, owner *db.User, slug string) *db.Site {
	t.Helper()
	site := db.Site{OwnerID: owner.ID, Name: slug, Slug: slug, DomainStatus: db.DomainStatusNone}
	require.NoError(t, gdb.Create(&site).Error)
	return &site
}

func int64Ptr(v int64) *int64 {
	return &v
}

func stringPtr(v string) *string {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func intPtr(v int) *int {
	return &v
}
