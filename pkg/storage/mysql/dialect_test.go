package mysql

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

func TestMySQLDialect_DSN(t *testing.T) {
	dsn, err := NewMySQLDialect().DSN(storage.ConnectionParams{
		Type:     "mysql",
		Host:     "127.0.0.1",
		DBName:   "siaf",
		User:     "etl",
		Password: "secret",
	})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "etl", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "127.0.0.1:3306", cfg.Addr)
	assert.Equal(t, "siaf", cfg.DBName)
	assert.True(t, cfg.ParseTime)
}

func TestMySQLDialect_TruncateIsTransactional(t *testing.T) {
	d := NewMySQLDialect()
	assert.Equal(t, "DELETE FROM certificado;", d.TruncateSQL("certificado"))
	assert.Empty(t, d.DisableTriggersSQL("certificado"))
	assert.Empty(t, d.EnableTriggersSQL("certificado"))
}
