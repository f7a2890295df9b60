package conf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kapilratnani/pgfire/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadParsesDBSection(t *testing.T) {
	p := writeConfig(t, `{
		"db": {"host": "db.internal", "port": 5433, "username": "u", "password": "p", "db": "pgfire"}
	}`)

	c, err := conf.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", c.DB.Host)
	assert.Equal(t, 5433, c.DB.Port)
	assert.Equal(t, "u", c.DB.Username)
	assert.Equal(t, "p", c.DB.Password)
	assert.Equal(t, "pgfire", c.DB.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := conf.Load("/nonexistent/config.json")
	require.Error(t, err)
}

func TestConnString(t *testing.T) {
	c := &conf.Config{DB: conf.DB{Host: "h", Port: 5432, Username: "u", Password: "p", Name: "d"}}
	assert.Equal(t, "postgres://u:p@h:5432/d", c.ConnString())
}

func TestConnStringDefaultsPort(t *testing.T) {
	c := &conf.Config{DB: conf.DB{Host: "h", Username: "u", Password: "p", Name: "d"}}
	assert.Equal(t, "postgres://u:p@h:5432/d", c.ConnString())
}
