package learning

import (
	"strings"

	"github.com/undercity/undercity/pkg/models"
)

// CoModIndex wraps the persisted task-file co-modification index
// (task-file-patterns.json).
type CoModIndex struct {
	path string
	data *models.CoModIndex
}

// LoadCoModIndex loads the index from path, defaulting to empty on
// absence or corruption.
func LoadCoModIndex(path string) (*CoModIndex, error) {
	data := models.NewCoModIndex()
	present, err := loadJSON(path, data)
	if err != nil {
		return nil, err
	}
	if !present || data.Files == nil {
		data = models.NewCoModIndex()
	}
	return &CoModIndex{path: path, data: data}, nil
}

// Save persists the index atomically.
func (c *CoModIndex) Save() error {
	return saveJSON(c.path, c.data)
}

// RecordCommit bumps co-occurrence counts for every pair of files in a
// successful commit's file set.
func (c *CoModIndex) RecordCommit(files []string) {
	for _, a := range files {
		for _, b := range files {
			if a == b {
				continue
			}
			if c.data.Files[a] == nil {
				c.data.Files[a] = make(map[string]int)
			}
			c.data.Files[a][b]++
		}
	}
}

// Hints returns the co-occurring files for target, sorted by descending
// frequency, capped at limit.
func (c *CoModIndex) Hints(target string, limit int) []string {
	co, ok := c.data.Files[target]
	if !ok {
		return nil
	}
	type pair struct {
		file  string
		count int
	}
	pairs := make([]pair, 0, len(co))
	for f, n := range co {
		pairs = append(pairs, pair{f, n})
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].count > pairs[j-1].count; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.file
	}
	return out
}

// FormatCoModificationHints renders a compact prompt snippet of
// co-modification hints across every target file.
func (c *CoModIndex) FormatCoModificationHints(targets []string, limitPerFile int) string {
	var b strings.Builder
	any := false
	for _, target := range targets {
		hints := c.Hints(target, limitPerFile)
		if len(hints) == 0 {
			continue
		}
		any = true
		b.WriteString("- " + target + " is often changed together with: " + strings.Join(hints, ", ") + "\n")
	}
	if !any {
		return ""
	}
	return "Files historically co-modified with your targets:\n" + b.String()
}
