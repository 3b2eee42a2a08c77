// Package catalog indexes the counts files that are available on disk.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"go.ngs.io/forecast-prep/internal/adapter/store/counts"
)

// FileName is the index written next to the year directories.
const FileName = "available_dates.json"

const (
	firstYear = 2021
	lastYear  = 2999
)

// Dates maps year -> month -> day -> init hour -> sorted lead hours.
// Keys are unpadded decimal strings.
type Dates map[string]map[string]map[string]map[string][]int

// Leads returns the lead hours available for an initialization, or nil.
func (d Dates) Leads(year, month, day, hour int) []int {
	return d[strconv.Itoa(year)][strconv.Itoa(month)][strconv.Itoa(day)][strconv.Itoa(hour)]
}

func (d Dates) add(year, month, day, hour, lead int) {
	y, m, dd, h := strconv.Itoa(year), strconv.Itoa(month), strconv.Itoa(day), strconv.Itoa(hour)
	if d[y] == nil {
		d[y] = map[string]map[string]map[string][]int{}
	}
	if d[y][m] == nil {
		d[y][m] = map[string]map[string][]int{}
	}
	if d[y][m][dd] == nil {
		d[y][m][dd] = map[string][]int{}
	}
	d[y][m][dd][h] = append(d[y][m][dd][h], lead)
}

// Scan walks <dir>/<year>/ for counts files and builds the index.
func Scan(dir string) (Dates, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	dates := Dates{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		year, err := strconv.Atoi(e.Name())
		if err != nil || year < firstYear || year > lastYear {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", e.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			init, lead, ok := counts.ParseFileName(f.Name())
			if !ok || init.Year() != year {
				continue
			}
			dates.add(init.Year(), int(init.Month()), init.Day(), init.Hour(), lead)
		}
	}
	for _, months := range dates {
		for _, days := range months {
			for _, hours := range days {
				for h, leads := range hours {
					slices.Sort(leads)
					hours[h] = slices.Compact(leads)
				}
			}
		}
	}
	return dates, nil
}

// Write scans dir and writes the index to dir/available_dates.json.
func Write(dir string) (Dates, error) {
	dates, err := Scan(dir)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(dates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode catalog: %w", err)
	}
	path := filepath.Join(dir, FileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return dates, nil
}

// Load reads a previously written index.
func Load(dir string) (Dates, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var dates Dates
	if err := json.Unmarshal(data, &dates); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", FileName, err)
	}
	return dates, nil
}
