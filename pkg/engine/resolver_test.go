package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_ExplicitMappingWinsOverName(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-1", Name: "Table 5", AreaID: "area-1", X: 1, Y: 2},
		{ID: "poi-2", Name: "Back corner", AreaID: "area-1", X: 3, Y: 4},
	}
	dir.areaByRobot["r1"] = "area-1"

	store := newMemStore()
	store.setMapping(&PoiMapping{Kind: "TABLE", Ref: "5", PoiID: "poi-2"})

	resolver := NewResolver(dir, store)
	poi, err := resolver.Resolve(context.Background(), "r1", "TABLE", "5")
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "poi-2", poi.ID)
}

func TestResolver_ExplicitMappingFallsBackAcrossAreas(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-9", Name: "Dock", AreaID: "area-2", X: 0, Y: 0},
	}
	dir.areaByRobot["r1"] = "area-1"

	store := newMemStore()
	store.setMapping(&PoiMapping{Kind: "CHARGING", Ref: "main", PoiID: "poi-9"})

	resolver := NewResolver(dir, store)
	poi, err := resolver.Resolve(context.Background(), "r1", "CHARGING", "main")
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "poi-9", poi.ID)
}

func TestResolver_DirectPoiID(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-7", Name: "Anything", AreaID: "area-1", X: 5, Y: 6},
	}
	store := newMemStore()
	resolver := NewResolver(dir, store)

	poi, err := resolver.Resolve(context.Background(), "r1", "TABLE", "poi-7")
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "poi-7", poi.ID)
}

func TestResolver_NameFallbackByKind(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-1", Name: "Table 5", AreaID: "a", X: 1, Y: 1},
		{ID: "poi-2", Name: "Kitchen Pass", AreaID: "a", X: 2, Y: 2},
		{ID: "poi-3", Name: "Dish Washing Station", AreaID: "a", X: 3, Y: 3},
		{ID: "poi-4", Name: "Charging Pile 1", AreaID: "a", X: 4, Y: 4},
		{ID: "poi-5", Name: "Operator Desk", AreaID: "a", X: 5, Y: 5},
	}
	store := newMemStore()
	resolver := NewResolver(dir, store)
	ctx := context.Background()

	cases := []struct {
		kind, ref, wantID string
	}{
		{"TABLE", "Table 5", "poi-1"},
		{"KITCHEN", "main", "poi-2"},
		{"WASHING", "main", "poi-3"},
		{"CHARGING", "main", "poi-4"},
		{"OPERATOR", "main", "poi-5"},
	}
	for _, tc := range cases {
		poi, err := resolver.Resolve(ctx, "r1", tc.kind, tc.ref)
		require.NoError(t, err, tc.kind)
		require.NotNil(t, poi, tc.kind)
		assert.Equal(t, tc.wantID, poi.ID, tc.kind)
	}
}

func TestResolver_WashingFallsBackToKitchen(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-2", Name: "Kitchen Pass", AreaID: "a", X: 2, Y: 2},
	}
	store := newMemStore()
	resolver := NewResolver(dir, store)

	poi, err := resolver.Resolve(context.Background(), "r1", "WASHING", "main")
	require.NoError(t, err)
	require.NotNil(t, poi)
	assert.Equal(t, "poi-2", poi.ID)
}

func TestResolver_NoMatchReturnsNilNotError(t *testing.T) {
	dir := newFakeDirectory()
	dir.pois["r1"] = []POI{
		{ID: "poi-1", Name: "Lobby", AreaID: "a", X: 0, Y: 0},
	}
	store := newMemStore()
	resolver := NewResolver(dir, store)

	poi, err := resolver.Resolve(context.Background(), "r1", "TABLE", "12")
	require.NoError(t, err)
	assert.Nil(t, poi)
}
