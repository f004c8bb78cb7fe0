package tests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/purchase-engine/model"
	"github.com/code-payments/purchase-engine/verified"
)

func RunStoreTests(t *testing.T, s verified.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s verified.Store){
		testVerifiedStore_HappyPath,
		testVerifiedStore_Upsert,
		testVerifiedStore_List,
	} {
		tf(t, s)
		teardown()
	}
}

func testVerifiedStore_HappyPath(t *testing.T, store verified.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, model.PlatformTest, "sku1")
	require.Equal(t, verified.ErrNotFound, err)

	expected := &verified.Record{
		Platform:  model.PlatformTest,
		ProductID: "sku1",
		Data:      json.RawMessage(`{"id":"sku1","latest_receipt":true}`),
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Put(ctx, expected))

	actual, err := store.Get(ctx, model.PlatformTest, "sku1")
	require.NoError(t, err)
	require.Equal(t, expected.Platform, actual.Platform)
	require.Equal(t, expected.ProductID, actual.ProductID)
	require.JSONEq(t, string(expected.Data), string(actual.Data))

	// Same product on another platform is a different record.
	_, err = store.Get(ctx, model.PlatformGooglePlay, "sku1")
	require.Equal(t, verified.ErrNotFound, err)
}

func testVerifiedStore_Upsert(t *testing.T, store verified.Store) {
	ctx := context.Background()

	first := &verified.Record{
		Platform:  model.PlatformTest,
		ProductID: "sku1",
		Data:      json.RawMessage(`{"id":"sku1","latest_receipt":false}`),
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Put(ctx, first))

	second := first.Clone()
	second.Data = json.RawMessage(`{"id":"sku1","latest_receipt":true}`)
	second.UpdatedAt = first.UpdatedAt.Add(time.Second)
	require.NoError(t, store.Put(ctx, second))

	actual, err := store.Get(ctx, model.PlatformTest, "sku1")
	require.NoError(t, err)
	require.JSONEq(t, string(second.Data), string(actual.Data))

	records, err := store.List(ctx, model.PlatformTest)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func testVerifiedStore_List(t *testing.T, store verified.Store) {
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, id := range []string{"sku1", "sku2", "sku3"} {
		require.NoError(t, store.Put(ctx, &verified.Record{
			Platform:  model.PlatformTest,
			ProductID: id,
			Data:      json.RawMessage(`{"id":"` + id + `"}`),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Put(ctx, &verified.Record{
		Platform:  model.PlatformGooglePlay,
		ProductID: "other",
		Data:      json.RawMessage(`{"id":"other"}`),
		UpdatedAt: base,
	}))

	records, err := store.List(ctx, model.PlatformTest)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "sku1", records[0].ProductID)
	require.Equal(t, "sku3", records[2].ProductID)
}
