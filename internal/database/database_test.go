package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"

	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

func TestDialectorFor(t *testing.T) {
	d, err := dialectorFor("postgres://user:pw@localhost:5432/ledger")
	require.NoError(t, err)
	assert.IsType(t, &postgres.Dialector{}, d)

	d, err = dialectorFor("mysql://user:pw@tcp(localhost:3306)/ledger")
	require.NoError(t, err)
	assert.IsType(t, &mysql.Dialector{}, d)

	d, err = dialectorFor("file:x?mode=memory")
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Dialector{}, d)
}

func TestOpen_SQLiteFileMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	db, err := Open(path, nil)
	require.NoError(t, err)
	defer Close(db)

	assert.True(t, db.Migrator().HasTable(&models.WalletSession{}))
	assert.True(t, db.Migrator().HasTable(&models.InvestmentAttempt{}))
	assert.True(t, db.Migrator().HasTable(&models.AttemptTransition{}))
	assert.True(t, db.Migrator().HasIndex(&models.InvestmentAttempt{}, "InflightKey"))
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)
}

func TestOpen_LogsThroughLogrus(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	db, err := Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", log)
	require.NoError(t, err)
	defer Close(db)

	now := time.Now().UTC()
	s := models.WalletSession{
		SessionID:  "s-1",
		PairingURI: "wc:t@2",
		Topic:      "t",
		Status:     models.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(time.Minute),
	}
	require.NoError(t, db.Create(&s).Error)
	hook.Reset()

	// a unique-key violation is an expected outcome, not an error log
	dup := s
	assert.Error(t, db.Create(&dup).Error)
	var missing models.WalletSession
	assert.Error(t, db.First(&missing, "session_id = ?", "nope").Error)
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level, e.Message)
	}

	assert.Error(t, db.Exec("SELECT * FROM no_such_table").Error)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Database query failed", entry.Message)
	assert.Contains(t, entry.Data["sql"], "no_such_table")
}
