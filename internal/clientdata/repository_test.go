package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

type cachedRate struct {
	Rate float64 `msgpack:"rate"`
}

func TestNewRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
}

func TestStoreAndGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	err := repo.Store("fx_rate", "BRL:USD", cachedRate{Rate: 5.12}, time.Hour)
	require.NoError(t, err)

	data, err := repo.GetIfFresh("fx_rate", "BRL:USD")
	require.NoError(t, err)
	require.NotNil(t, data)

	var parsed cachedRate
	require.NoError(t, msgpack.Unmarshal(data, &parsed))
	assert.Equal(t, 5.12, parsed.Rate)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store("fx_rate", "BRL:USD", cachedRate{Rate: 5.0}, time.Hour))
	require.NoError(t, repo.Store("fx_rate", "BRL:USD", cachedRate{Rate: 5.2}, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM fx_rate WHERE pair = ?", "BRL:USD").Scan(&count))
	assert.Equal(t, 1, count)

	data, err := repo.GetIfFresh("fx_rate", "BRL:USD")
	require.NoError(t, err)
	var parsed cachedRate
	require.NoError(t, msgpack.Unmarshal(data, &parsed))
	assert.Equal(t, 5.2, parsed.Rate)
}

func TestGetIfFreshExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	packed, err := msgpack.Marshal(cachedRate{Rate: 1.0})
	require.NoError(t, err)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err = db.Exec("INSERT INTO sovereign_yield (country, data, expires_at) VALUES (?, ?, ?)",
		"BR", packed, expiredAt)
	require.NoError(t, err)

	data, err := repo.GetIfFresh("sovereign_yield", "BR")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestGetReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	packed, err := msgpack.Marshal(cachedRate{Rate: 1.0})
	require.NoError(t, err)

	expiredAt := time.Now().Add(-time.Hour).Unix()
	_, err = db.Exec("INSERT INTO sovereign_yield (country, data, expires_at) VALUES (?, ?, ?)",
		"BR", packed, expiredAt)
	require.NoError(t, err)

	fresh, err := repo.GetIfFresh("sovereign_yield", "BR")
	require.NoError(t, err)
	assert.Nil(t, fresh)

	stale, err := repo.Get("sovereign_yield", "BR")
	require.NoError(t, err)
	require.NotNil(t, stale)

	var parsed cachedRate
	require.NoError(t, msgpack.Unmarshal(stale, &parsed))
	assert.Equal(t, 1.0, parsed.Rate)
}

func TestGetNotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	data, err := repo.Get("reserves_level", "AR")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store("crypto_ratio", "AR", cachedRate{Rate: 1.08}, time.Hour))

	data, err := repo.GetIfFresh("crypto_ratio", "AR")
	require.NoError(t, err)
	require.NotNil(t, data)

	require.NoError(t, repo.Delete("crypto_ratio", "AR"))

	data, err = repo.GetIfFresh("crypto_ratio", "AR")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestDeleteNonExistent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Delete("crypto_ratio", "NONEXISTENT"))
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()

	packed, _ := msgpack.Marshal(cachedRate{Rate: 1.0})
	for _, pair := range []string{"EUR:USD", "GBP:USD", "JPY:USD"} {
		_, err := db.Exec("INSERT INTO fx_rate (pair, data, expires_at) VALUES (?, ?, ?)", pair, packed, expiredAt)
		require.NoError(t, err)
	}
	for _, pair := range []string{"CHF:USD", "AUD:USD"} {
		_, err := db.Exec("INSERT INTO fx_rate (pair, data, expires_at) VALUES (?, ?, ?)", pair, packed, freshAt)
		require.NoError(t, err)
	}

	deleted, err := repo.DeleteExpired("fx_rate")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM fx_rate").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestDeleteExpiredEmptyTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	deleted, err := repo.DeleteExpired("fx_rate")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	now := time.Now()
	expiredAt := now.Add(-time.Hour).Unix()
	freshAt := now.Add(time.Hour).Unix()
	packed, _ := msgpack.Marshal(cachedRate{Rate: 1.0})

	_, err := db.Exec("INSERT INTO fx_rate (pair, data, expires_at) VALUES (?, ?, ?)", "EUR:USD", packed, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO fx_rate (pair, data, expires_at) VALUES (?, ?, ?)", "GBP:USD", packed, freshAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sovereign_yield (country, data, expires_at) VALUES (?, ?, ?)", "BR", packed, expiredAt)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO reserves_level (country, data, expires_at) VALUES (?, ?, ?)", "AR", packed, freshAt)
	require.NoError(t, err)

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results["fx_rate"])
	assert.Equal(t, int64(1), results["sovereign_yield"])
	assert.Equal(t, int64(0), results["reserves_level"])
}

func TestStoreWithEachTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	cases := []struct{ table, key string }{
		{"fx_rate", "BRL:USD"},
		{"parallel_fx_rate", "VEF:USD"},
		{"crypto_ratio", "AR"},
		{"inflation_series", "BR"},
		{"sovereign_yield", "BR"},
		{"reserves_level", "BR"},
		{"risk_free_yield", "US"},
		{"stablecoin_premium", "AR"},
	}

	for _, tc := range cases {
		t.Run(tc.table, func(t *testing.T) {
			require.NoError(t, repo.Store(tc.table, tc.key, cachedRate{Rate: 1.5}, time.Hour))
			data, err := repo.GetIfFresh(tc.table, tc.key)
			require.NoError(t, err)
			require.NotNil(t, data)

			var parsed cachedRate
			require.NoError(t, msgpack.Unmarshal(data, &parsed))
			assert.Equal(t, 1.5, parsed.Rate)
		})
	}
}

func TestGetKeyColumn(t *testing.T) {
	tests := []struct{ table, expected string }{
		{"fx_rate", "pair"},
		{"parallel_fx_rate", "pair"},
		{"crypto_ratio", "country"},
		{"sovereign_yield", "country"},
		{"reserves_level", "country"},
	}
	for _, tc := range tests {
		t.Run(tc.table, func(t *testing.T) {
			assert.Equal(t, tc.expected, getKeyColumn(tc.table))
		})
	}
}

func TestInvalidTableName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("Store", func(t *testing.T) {
		err := repo.Store("invalid_table; DROP TABLE fx_rate;--", "key", cachedRate{}, time.Hour)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("GetIfFresh", func(t *testing.T) {
		_, err := repo.GetIfFresh("users", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("Get", func(t *testing.T) {
		_, err := repo.Get("passwords", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("Delete", func(t *testing.T) {
		err := repo.Delete("secrets", "key")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		_, err := repo.DeleteExpired("nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid table name")
	})
}

func TestValidateTable(t *testing.T) {
	for _, table := range AllTables {
		t.Run(table, func(t *testing.T) {
			assert.NoError(t, validateTable(table))
		})
	}
}
