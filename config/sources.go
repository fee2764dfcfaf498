package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"dealwatch/internal/models"
)

// SourceFile reads the sources CSV on every call, so edits apply on the
// next cycle.
type SourceFile string

func (f SourceFile) Sources() ([]models.Source, error) {
	return LoadSources(string(f))
}

// LoadSources parses a CSV with the header friendly_name,url.
func LoadSources(path string) ([]models.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readSources(f, path)
}

func readSources(r io.Reader, name string) ([]models.Source, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	nameCol, urlCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "friendly_name":
			nameCol = i
		case "url":
			urlCol = i
		}
	}
	if nameCol < 0 || urlCol < 0 {
		return nil, fmt.Errorf("%s: header must contain friendly_name and url", name)
	}

	var sources []models.Source
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		line, _ := cr.FieldPos(0)
		src := models.Source{
			Name: strings.TrimSpace(record[nameCol]),
			URL:  strings.TrimSpace(record[urlCol]),
		}
		if src.Name == "" || src.URL == "" {
			return nil, fmt.Errorf("%s line %d: friendly_name and url are required", name, line)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
