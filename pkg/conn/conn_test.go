package conn

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	testCases := []struct {
		name string
		opt  PostgresOption
		want string
	}{
		{
			name: "defaults",
			opt:  PostgresOption{},
			want: "postgres://localhost:5432?sslmode=disable",
		},
		{
			name: "full",
			opt: PostgresOption{
				Host:     "db",
				Port:     6432,
				User:     "exrs",
				Password: "secret",
				Database: "prices",
				SSLMode:  "require",
			},
			want: "postgres://exrs:secret@db:6432/prices?sslmode=require",
		},
		{
			name: "conn string wins",
			opt:  PostgresOption{Host: "ignored", ConnString: "host=x user=y"},
			want: "host=x user=y",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.opt.dsn()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOpenSQLiteMemory(t *testing.T) {
	client, err := OpenSQLite(MemorySQLite, nil)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, DriverSQLite, client.Driver())
	require.NoError(t, client.DB().Exec("CREATE TABLE t (v INTEGER)").Error)
	require.NoError(t, client.DB().Exec("INSERT INTO t (v) VALUES (1)").Error)

	var n int64
	require.NoError(t, client.DB().Raw("SELECT COUNT(*) FROM t").Scan(&n).Error)
	assert.Equal(t, int64(1), n)

	_, err = OpenSQLite("", nil)
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), RedisOption{Addr: server.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := server.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpenRedisUnreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := OpenRedis(context.Background(), RedisOption{Addr: addr})
	assert.Error(t, err)
}
