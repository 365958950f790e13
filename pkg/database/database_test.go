package database

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/configs"
)

func TestDSN(t *testing.T) {
	cfg := configs.Config{DBHost: "db", DBPort: 5432, DBUser: "org", DBPassword: "pw"}
	assert.Equal(t, "host=db port=5432 user=org password=pw dbname=directory sslmode=disable", DSN(cfg, "directory"))
}

func TestConnectRedis(t *testing.T) {
	client, err := ConnectRedis(configs.Config{})
	require.NoError(t, err)
	assert.Nil(t, client)

	mr := miniredis.RunT(t)
	client, err = ConnectRedis(configs.Config{RedisHost: mr.Host(), RedisPort: atoi(t, mr.Port())})
	require.NoError(t, err)
	require.NotNil(t, client)
	client.Close()

	mr.Close()
	_, err = ConnectRedis(configs.Config{RedisHost: mr.Host(), RedisPort: 1})
	assert.Error(t, err)
}

func TestConnectDBUnreachable(t *testing.T) {
	_, err := ConnectDB(configs.Config{
		DBHost: "127.0.0.1", DBPort: 1, DBUser: "x", DBName: "x", DBTimeout: 500 * time.Millisecond,
	})
	assert.Error(t, err)
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
