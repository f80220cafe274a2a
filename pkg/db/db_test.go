package db

import (
	"testing"

	"wavesight-core/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestDialect(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Host = "db"
	cfg.Database.Port = "5432"
	cfg.Database.DBNAME = "wavesight"

	d, err := Dialect(cfg)
	require.NoError(t, err)
	pg, ok := d.(*postgres.Dialector)
	require.True(t, ok)
	require.Contains(t, pg.Config.DSN, "dbname=wavesight")
	require.Equal(t, "wavesight", getDBNameFromDialector(d))

	cfg.Database.Type = "mysql"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	_, ok = d.(*mysql.Dialector)
	require.True(t, ok)
	require.Equal(t, "wavesight", getDBNameFromDialector(d))

	cfg.Database.Type = "sqlite"
	d, err = Dialect(cfg)
	require.NoError(t, err)
	_, ok = d.(*sqlite.Dialector)
	require.True(t, ok)

	cfg.Database.Type = "oracle"
	_, err = Dialect(cfg)
	require.Error(t, err)
}
