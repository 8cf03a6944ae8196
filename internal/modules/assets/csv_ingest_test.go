package assets

import (
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecnolok-2025/invpanel-pro/internal/database"
)

func newTestIngestor(t *testing.T) (*CSVIngestor, *AssetRepository, *PriceRepository) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(database.Schema)
	require.NoError(t, err)

	assetRepo := NewAssetRepository(db, log)
	priceRepo := NewPriceRepository(db, log)
	return NewCSVIngestor(assetRepo, priceRepo, log), assetRepo, priceRepo
}

func TestIngest_PerAssetUpload(t *testing.T) {
	ingestor, assetRepo, priceRepo := newTestIngestor(t)
	asset, err := assetRepo.GetOrCreate("GGAL", "Grupo Galicia")
	require.NoError(t, err)

	csvData := "date,close\n2026-01-02,100.5\n2026-01-03,101.25\n"

	result, err := ingestor.Ingest(strings.NewReader(csvData), asset)
	require.NoError(t, err)

	assert.Equal(t, IngestResult{Inserted: 2}, result)

	history, err := priceRepo.History("GGAL", "", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, "2026-01-03", history[0].Date)
	assert.Equal(t, 101.25, history[0].Close)
	assert.Equal(t, "2026-01-02", history[1].Date)
	assert.Equal(t, 100.5, history[1].Close)
}

func TestIngest_MultiAssetCreatesAssets(t *testing.T) {
	ingestor, assetRepo, _ := newTestIngestor(t)

	csvData := "date,symbol,close,name\n" +
		"2026-01-02,GGAL,100.5,Grupo Galicia\n" +
		"2026-01-02,YPFD,2500,YPF\n" +
		"2026-01-03,ggal,101.0,\n"

	result, err := ingestor.Ingest(strings.NewReader(csvData), nil)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 3}, result)

	a, err := assetRepo.GetBySymbol("GGAL")
	require.NoError(t, err)
	require.NotNil(t, a, "lower-case symbols fold into the same asset")
	assert.Equal(t, "Grupo Galicia", a.Name)

	b, err := assetRepo.GetBySymbol("YPFD")
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestIngest_SemicolonAndDecimalComma(t *testing.T) {
	ingestor, assetRepo, priceRepo := newTestIngestor(t)
	asset, err := assetRepo.GetOrCreate("AL30", "")
	require.NoError(t, err)

	csvData := "fecha;precio\n02/01/2026;123,45\n03/01/2026;124,10\n"

	result, err := ingestor.Ingest(strings.NewReader(csvData), asset)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 2}, result)

	history, err := priceRepo.History("AL30", "", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2026-01-02", history[1].Date, "dd/mm/yyyy dates are normalized")
	assert.Equal(t, 123.45, history[1].Close)
}

func TestIngest_UpsertUpdatesExistingDate(t *testing.T) {
	ingestor, assetRepo, priceRepo := newTestIngestor(t)
	asset, err := assetRepo.GetOrCreate("GGAL", "")
	require.NoError(t, err)

	first, err := ingestor.Ingest(strings.NewReader("date,close\n2026-01-02,100\n"), asset)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 1}, first)

	second, err := ingestor.Ingest(strings.NewReader("date,close\n2026-01-02,105\n"), asset)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Updated: 1}, second)

	history, err := priceRepo.History("GGAL", "", "", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 105.0, history[0].Close)
}

func TestIngest_SkipsBadRows(t *testing.T) {
	ingestor, assetRepo, _ := newTestIngestor(t)
	asset, err := assetRepo.GetOrCreate("GGAL", "")
	require.NoError(t, err)

	csvData := "date,close\n" +
		"2026-01-02,100\n" +
		"not-a-date,101\n" +
		"2026-01-03,not-a-number\n" +
		"2026-01-04,\n" +
		"2026-01-05,102\n"

	result, err := ingestor.Ingest(strings.NewReader(csvData), asset)
	require.NoError(t, err)

	assert.Equal(t, IngestResult{Inserted: 2, Skipped: 3}, result)
}

func TestIngest_MultiAssetSkipsMissingSymbol(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)

	csvData := "date,symbol,close\n2026-01-02,,100\n2026-01-02,GGAL,100\n"

	result, err := ingestor.Ingest(strings.NewReader(csvData), nil)
	require.NoError(t, err)
	assert.Equal(t, IngestResult{Inserted: 1, Skipped: 1}, result)
}

func TestIngest_EmptyFile(t *testing.T) {
	ingestor, _, _ := newTestIngestor(t)

	_, err := ingestor.Ingest(strings.NewReader(""), nil)
	assert.Error(t, err, "a file without a header is rejected")
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ',', sniffDelimiter("date,close\n2026-01-02,100\n"))
	assert.Equal(t, ';', sniffDelimiter("fecha;precio\n02/01/2026;123,4\n"))
	assert.Equal(t, ',', sniffDelimiter(""))
}

func TestParseDecimal(t *testing.T) {
	v, ok := parseDecimal("123.45")
	require.True(t, ok)
	assert.Equal(t, 123.45, v)

	v, ok = parseDecimal("123,45")
	require.True(t, ok)
	assert.Equal(t, 123.45, v)

	_, ok = parseDecimal("abc")
	assert.False(t, ok)

	_, ok = parseDecimal("")
	assert.False(t, ok)
}
