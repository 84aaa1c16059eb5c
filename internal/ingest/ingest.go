// Package ingest moves datasets across the engine boundary: CSV import
// from local files or HTTP(S) URLs, and export of cleaned datasets back
// to CSV with the original column layout.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"labelfix/internal/store"
)

// Parsed is an imported dataset before persistence. The label column is
// the last CSV column; everything before it is a feature.
type Parsed struct {
	FeatureColumns []string
	LabelColumn    string
	Features       [][]float64
	Labels         []int
}

// Loader reads CSV datasets from the local filesystem or over HTTP.
type Loader struct {
	client *resty.Client
}

func NewLoader(timeout time.Duration) *Loader {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Loader{client: client}
}

// Load reads and parses a dataset from a local path or an http(s) URL.
func (l *Loader) Load(source string) (*Parsed, error) {
	var reader io.Reader

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := l.client.R().Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch dataset %s: %w", source, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("failed to fetch dataset %s: status %d", source, resp.StatusCode())
		}
		reader = bytes.NewReader(resp.Body())
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open dataset %s: %w", source, err)
		}
		defer f.Close()
		reader = f
	}

	parsed, err := Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", source, err)
	}
	log.Info().Str("source", source).Int("samples", len(parsed.Features)).
		Int("features", len(parsed.FeatureColumns)).Msg("dataset loaded")
	return parsed, nil
}

// Parse decodes header-first CSV where the last column holds integer
// labels and all preceding columns hold numeric features.
func Parse(r io.Reader) (*Parsed, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("need at least one feature column and a label column, got %d column(s)", len(header))
	}

	nFeatures := len(header) - 1
	parsed := &Parsed{
		FeatureColumns: header[:nFeatures],
		LabelColumn:    header[nFeatures],
	}

	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		features := make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[j]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: invalid feature value %q", row, header[j], record[j])
			}
			features[j] = v
		}
		label, err := strconv.Atoi(strings.TrimSpace(record[nFeatures]))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid label %q", row, record[nFeatures])
		}

		parsed.Features = append(parsed.Features, features)
		parsed.Labels = append(parsed.Labels, label)
		row++
	}

	if len(parsed.Features) == 0 {
		return nil, fmt.Errorf("dataset has no data rows")
	}
	return parsed, nil
}

// ExportCSV writes the dataset's current labels to
// <dir>/<name>_cleaned_<timestamp>.csv with the original column names,
// rows ordered by original position. Returns the written path.
func ExportCSV(dir string, dataset *store.Dataset, samples []*store.Sample) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}

	ordered := append([]*store.Sample(nil), samples...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SampleIndex < ordered[j].SampleIndex })

	name := fmt.Sprintf("%s_cleaned_%s.csv", dataset.Name, time.Now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append(append([]string(nil), dataset.FeatureColumns...), dataset.LabelColumn)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for _, sample := range ordered {
		if len(sample.Features) != len(dataset.FeatureColumns) {
			return "", fmt.Errorf("sample %d has %d features, dataset declares %d",
				sample.ID, len(sample.Features), len(dataset.FeatureColumns))
		}
		for j, v := range sample.Features {
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		record[len(record)-1] = strconv.Itoa(sample.CurrentLabel)
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("failed to write sample %d: %w", sample.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush export: %w", err)
	}
	log.Info().Str("path", path).Int("samples", len(ordered)).Msg("dataset exported")
	return path, nil
}
