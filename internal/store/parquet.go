package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"factorlab/internal/domain"
)

// ParquetCache caches daily price series as Parquet files on disk so repeated
// backtests over the same benchmark do not refetch a year of bars.
type ParquetCache struct {
	DataDir string
}

// NewParquetCache creates a ParquetCache rooted at the given data directory.
func NewParquetCache(dataDir string) *ParquetCache {
	return &ParquetCache{DataDir: dataDir}
}

// PriceRecord is the Parquet schema for a cached daily bar.
type PriceRecord struct {
	Date   string   `parquet:"date"`
	Close  float64  `parquet:"close"`
	Open   *float64 `parquet:"open,optional"`
	High   *float64 `parquet:"high,optional"`
	Low    *float64 `parquet:"low,optional"`
	Volume *float64 `parquet:"volume,optional"`
}

// Write replaces the cached series for a ticker. Records are sorted by date
// before writing so reads come back in series order.
func (c *ParquetCache) Write(class domain.AssetClass, ticker string, points []domain.PricePoint) error {
	records := make([]PriceRecord, len(points))
	for i, p := range points {
		records[i] = PriceRecord{
			Date:   p.Date,
			Close:  p.Close,
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Volume: p.Volume,
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })

	path := c.seriesPath(class, ticker)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return fmt.Errorf("writing cache for %s: %w", ticker, err)
	}
	return nil
}

// Read returns the cached series for a ticker, or an error when no cache file
// exists.
func (c *ParquetCache) Read(class domain.AssetClass, ticker string) ([]domain.PricePoint, error) {
	records, err := parquet.ReadFile[PriceRecord](c.seriesPath(class, ticker))
	if err != nil {
		return nil, err
	}

	points := make([]domain.PricePoint, len(records))
	for i, r := range records {
		points[i] = domain.PricePoint{
			Date:   r.Date,
			Close:  r.Close,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Volume: r.Volume,
		}
	}
	return points, nil
}

// FreshSince reports whether the cache file for a ticker was written at or
// after the given time.
func (c *ParquetCache) FreshSince(class domain.AssetClass, ticker string, t time.Time) bool {
	info, err := os.Stat(c.seriesPath(class, ticker))
	if err != nil {
		return false
	}
	return !info.ModTime().Before(t)
}

// seriesPath returns the cache path for a ticker.
// Layout: <dataDir>/<class>/daily/<TICKER>.parquet
func (c *ParquetCache) seriesPath(class domain.AssetClass, ticker string) string {
	safe := strings.ToUpper(strings.ReplaceAll(ticker, "/", "-"))
	return filepath.Join(c.DataDir, string(class), "daily", safe+".parquet")
}
