package remote

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/constants"
)

// Runs against the emulator started with
// gcloud emulators firestore start --host-port=localhost:8200
func setupFirestore(t *testing.T) *firestore.Client {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "storefront-test")
	if err != nil {
		t.Fatalf("failed creating firestore client with error: %s", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestFirestoreContract(t *testing.T) {
	client := setupFirestore(t)
	testStoreContract(t, NewFirestore(client), "u-"+uuid.NewString())
}

func TestFirestoreDocuments(t *testing.T) {
	client := setupFirestore(t)
	store := NewFirestore(client)
	c := context.Background()

	legacy := "u-" + uuid.NewString()
	_, err := client.Collection(constants.COLLECTION_CARTS).Doc(legacy).Set(c, map[string]interface{}{
		"items": []interface{}{map[string]interface{}{"id": 2, "name": "GUTS_SHOTGUN", "price": "25,000"}},
	})
	require.NoError(t, err)
	snap := firstSnapshot(t, store, legacy)
	require.NoError(t, snap.Err)
	require.True(t, snap.Exists)
	assert.Equal(t, "2", string(snap.Record.Items[0].ID))

	broken := "u-" + uuid.NewString()
	_, err = client.Collection(constants.COLLECTION_CARTS).Doc(broken).Set(c, map[string]interface{}{"items": "nope"})
	require.NoError(t, err)
	snap = firstSnapshot(t, store, broken)
	assert.Error(t, snap.Err)
	openUnreadable(t, store, broken)
}

func TestDecodeDocument(t *testing.T) {
	testCases := []struct {
		name        string
		data        map[string]interface{}
		expectedIDs []string
		isError     bool
	}{
		{
			name: "string ids",
			data: map[string]interface{}{
				"items": []interface{}{map[string]interface{}{"instanceId": "a", "id": "2", "name": "GUTS_SHOTGUN", "price": "25,000"}},
			},
			expectedIDs: []string{"2"},
		},
		{
			name: "numeric ids",
			data: map[string]interface{}{
				"items": []interface{}{map[string]interface{}{"id": int64(7), "name": "SANDEVISTAN", "price": "45,000"}},
			},
			expectedIDs: []string{"7"},
		},
		{name: "no items", data: map[string]interface{}{}, expectedIDs: []string{}},
		{name: "items not a list", data: map[string]interface{}{"items": "nope"}, isError: true},
		{name: "id not scalar", data: map[string]interface{}{"items": []interface{}{map[string]interface{}{"id": []interface{}{}}}}, isError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := decodeDocument(tc.data)
			if tc.isError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			ids := make([]string, len(record.Items))
			for i, item := range record.Items {
				ids[i] = string(item.ID)
			}
			assert.Equal(t, tc.expectedIDs, ids)
		})
	}
}
