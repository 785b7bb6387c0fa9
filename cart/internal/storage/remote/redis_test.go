package remote

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	testRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container in short mode")
	}
	c := context.Background()

	redisContainer, err := testRedis.Run(
		c,
		"redis:7.4.2-alpine3.21",
		testRedis.WithLogLevel(testRedis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed running redis container with error: %s", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Errorf("failed to terminate container: %s", err)
		}
	})

	redisConnStr, err := redisContainer.ConnectionString(c)
	if err != nil {
		t.Fatalf("failed getting redis connection string with error: %s", err)
	}
	redisOpt, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed parsing redis connection string with error: %s", err)
	}
	client := redis.NewClient(redisOpt)
	if err = client.Ping(c).Err(); err != nil {
		t.Fatalf("failed ping redis client with error: %s", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisContract(t *testing.T) {
	client := setupRedis(t)
	testStoreContract(t, NewRedis(client), "u1")
}

func TestRedisDocumentShape(t *testing.T) {
	client := setupRedis(t)
	store := NewRedis(client)
	c := context.Background()

	require.NoError(t, store.Replace(c, "u2", sampleRecord(1)))
	raw, err := client.Get(c, "carts:u2").Result()
	require.NoError(t, err)
	assert.Contains(t, raw, `"items":[`)
	assert.Contains(t, raw, `"price":"???"`)
	assert.NotContains(t, raw, "icon")

	// ids written by older clients as numbers still decode
	require.NoError(t, client.Set(c, "carts:u3", `{"items":[{"id":2,"name":"GUTS_SHOTGUN","price":"25,000"}]}`, 0).Err())
	snap, err := store.get(c, "u3")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "2", string(snap.Record.Items[0].ID))

	require.NoError(t, client.Set(c, "carts:u4", `garbage`, 0).Err())
	_, err = store.get(c, "u4")
	assert.Error(t, err)
}

func TestRedisUnreadableDocument(t *testing.T) {
	client := setupRedis(t)
	store := NewRedis(client)
	c := context.Background()

	testCases := []struct {
		name    string
		userID  string
		payload string
	}{
		{name: "not json", userID: "bad1", payload: `garbage`},
		{name: "items not a list", userID: "bad2", payload: `{"items":"nope"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, client.Set(c, redisKey(tc.userID), tc.payload, 0).Err())

			snap := firstSnapshot(t, store, tc.userID)
			assert.Error(t, snap.Err)
			assert.False(t, snap.Exists)

			openUnreadable(t, store, tc.userID)
		})
	}
}

func TestRedisMalformedChangeIsReported(t *testing.T) {
	client := setupRedis(t)
	store := NewRedis(client)
	c := context.Background()

	rec := &recorder{}
	sub, err := store.Subscribe(c, "u5", rec.record)
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool {
		_, n := rec.last()
		return n == 1
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, client.Publish(c, redisChannel("u5"), `garbage`).Err())
	assert.Eventually(t, func() bool {
		snap, n := rec.last()
		return n == 2 && snap.Err != nil
	}, 10*time.Second, 20*time.Millisecond)
}
