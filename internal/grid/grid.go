// Package grid turns an uploaded scorecard file into a row-major cell grid.
package grid

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// MaxFileBytes is the hard upload size limit (5 MiB).
const MaxFileBytes = 5 * 1024 * 1024

var allowedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
}

// ValidateFile checks extension and size before any decode work.
func ValidateFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file extension %q", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxFileBytes {
		return fmt.Errorf("file too large: %d bytes (limit %d)", info.Size(), MaxFileBytes)
	}
	return nil
}

// Load decodes the first sheet of the file into a 2-D grid of cell strings.
func Load(path string) ([][]string, error) {
	if strings.ToLower(filepath.Ext(path)) == ".csv" {
		return loadCSV(path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func loadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}
