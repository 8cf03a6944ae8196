package assets

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IngestResult tallies a CSV price upload. Skipped rows never abort the
// batch; each row is validated on its own.
type IngestResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// CSVIngestor loads historical prices from user-supplied CSV files.
//
// Two layouts are supported:
//   - per-asset upload: header date,close (asset chosen by the caller)
//   - multi-asset upload: header date,symbol,close (optional name column),
//     assets created on the fly, idempotent by symbol
//
// Comma and semicolon delimiters are both accepted, as are decimal commas
// ("123,45") and dd/mm/yyyy dates.
type CSVIngestor struct {
	assetRepo *AssetRepository
	priceRepo *PriceRepository
	log       zerolog.Logger
}

// NewCSVIngestor creates a new CSV ingestor
func NewCSVIngestor(assetRepo *AssetRepository, priceRepo *PriceRepository, log zerolog.Logger) *CSVIngestor {
	return &CSVIngestor{
		assetRepo: assetRepo,
		priceRepo: priceRepo,
		log:       log.With().Str("component", "csv_ingest").Logger(),
	}
}

// Ingest reads CSV rows from r and upserts prices. When asset is non-nil all
// rows belong to it; otherwise each row must carry a symbol column.
func (c *CSVIngestor) Ingest(r io.Reader, asset *Asset) (IngestResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to read CSV: %w", err)
	}

	delimiter := sniffDelimiter(string(data))

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var result IngestResult
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Skipped++
			continue
		}

		date := parseDate(field(record, cols, "date", "fecha"))
		if date == "" {
			result.Skipped++
			continue
		}

		close, ok := parseDecimal(field(record, cols, "close", "precio", "price"))
		if !ok {
			result.Skipped++
			continue
		}

		target := asset
		if target == nil {
			sym := strings.ToUpper(strings.TrimSpace(field(record, cols, "symbol", "ticker")))
			if sym == "" {
				result.Skipped++
				continue
			}
			name := strings.TrimSpace(field(record, cols, "name"))
			target, err = c.assetRepo.GetOrCreate(sym, name)
			if err != nil {
				c.log.Warn().Err(err).Str("symbol", sym).Msg("Failed to get or create asset, skipping row")
				result.Skipped++
				continue
			}
		}

		inserted, err := c.priceRepo.Upsert(target.ID, date, close)
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", target.Symbol).Str("date", date).Msg("Failed to upsert price, skipping row")
			result.Skipped++
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	c.log.Info().
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Msg("CSV ingestion complete")

	return result, nil
}

// sniffDelimiter picks between comma and semicolon based on frequency in the
// first chunk of the file.
func sniffDelimiter(sample string) rune {
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	if strings.Count(sample, ";") > strings.Count(sample, ",") {
		return ';'
	}
	return ','
}

func field(record []string, cols map[string]int, names ...string) string {
	for _, name := range names {
		if idx, ok := cols[name]; ok && idx < len(record) {
			if v := strings.TrimSpace(record[idx]); v != "" {
				return v
			}
		}
	}
	return ""
}

func parseDate(s string) string {
	if s == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

// parseDecimal accepts "123.45" and the decimal-comma form "123,45".
func parseDecimal(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	v, _ := d.Float64()
	return v, true
}
