package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"dealwatch/internal/models"
)

var csvHeader = []string{"title", "original_price", "current_price", "url"}

// CSVStore keeps known deals in a flat CSV file with the columns
// title,original_price,current_price,url.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore returns a store backed by the file at path. The file is created
// on the first write.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads every deal in file order. A missing file is an empty store.
func (s *CSVStore) Load() ([]models.KnownDeal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, name := range csvHeader {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", s.path, name)
		}
	}

	var deals []models.KnownDeal
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		deal, err := decodeDeal(record, cols)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: %w", s.path, line, err)
		}
		deals = append(deals, deal)
	}
	return deals, nil
}

// Append adds one deal to the end of the file, writing the header first if
// the file is new.
func (s *CSVStore) Append(deal models.KnownDeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	w := newCSVWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Write(encodeDeal(deal)); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RewriteAll replaces the file contents with deals. The new contents are
// written to a temporary file and renamed over the old one.
func (s *CSVStore) RewriteAll(deals []models.KnownDeal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpFile := s.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}

	w := newCSVWriter(file)
	records := make([][]string, 0, len(deals)+1)
	records = append(records, csvHeader)
	for _, d := range deals {
		records = append(records, encodeDeal(d))
	}

	// WriteAll flushes
	if err = w.WriteAll(records); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}

	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}

	return os.Rename(tmpFile, s.path)
}

// Close is a no-op; the file is opened per operation.
func (s *CSVStore) Close() error {
	return nil
}

func newCSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	return cw
}

func encodeDeal(d models.KnownDeal) []string {
	return []string{d.Title, d.OriginalPrice.String(), d.CurrentPrice.String(), d.URL}
}

func decodeDeal(record []string, cols map[string]int) (models.KnownDeal, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return record[i]
	}

	original, err := decodePrice(field("original_price"))
	if err != nil {
		return models.KnownDeal{}, fmt.Errorf("original_price: %w", err)
	}
	current, err := decodePrice(field("current_price"))
	if err != nil {
		return models.KnownDeal{}, fmt.Errorf("current_price: %w", err)
	}

	return models.KnownDeal{
		Title:         field("title"),
		OriginalPrice: original,
		CurrentPrice:  current,
		URL:           field("url"),
	}, nil
}

func decodePrice(s string) (models.Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Price{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return models.Price{}, err
	}
	return models.NewPrice(n), nil
}
