package datasource_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opentexas/auction-worker/internal/datasource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, path string) {
	t.Helper()
	body := `{"data":{"auctionID":"ext-1","value":{"amount":1000},"minimalStep":{"amount":200},"auctionPeriod":{"startDate":"2020-01-01T00:00:00Z"}}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestFileDataSource_GetData(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "auction_ext-1.json"))

	ds := datasource.NewFileDataSource(dir, "ext-1")
	data, err := ds.GetData(context.Background(), true, false)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", data.AuctionID)
	assert.False(t, ds.Features().PostResult)
}

func TestTestDataSource_GetData_SynthesizesStartDate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixture.json")
	writeFixture(t, path)

	ds := datasource.NewTestDataSource(path)
	before := time.Now()
	data, err := ds.GetData(context.Background(), true, false)
	require.NoError(t, err)

	startDate, err := time.Parse(time.RFC3339Nano, data.AuctionPeriod.StartDate)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(120*time.Second), startDate, 5*time.Second)
}

func TestFactory_BuildsRegisteredVariants(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "auction_ext-1.json"))

	f := datasource.NewFactory()
	ds, err := f.Build(datasource.Config{Type: "file", Path: dir, AuctionID: "ext-1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, ds)

	_, err = f.Build(datasource.Config{Type: "unknown"}, nil)
	assert.Error(t, err)
}
