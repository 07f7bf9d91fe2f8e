// Profile-Guided Optimization framework
package optimizer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/gsm-lang/gsmc/pkg/ir"
	"github.com/gsm-lang/gsmc/pkg/logger"
)

// Profile represents runtime execution profile
type Profile struct {
	Functions map[string]*FunctionProfile `json:"functions"`
	Hotspots  []Hotspot                   `json:"hotspots"`
}

type FunctionProfile struct {
	Name   string            `json:"name"`
	Blocks map[string]uint64 `json:"blocks"`
	Total  uint64            `json:"total"`
}

type Hotspot struct {
	Function string  `json:"function"`
	Block    string  `json:"block"`
	Count    uint64  `json:"count"`
	Percent  float64 `json:"percent"`
}

// hotPercent is the share of block entries above which a block is a hotspot.
const hotPercent = 5.0

// NewProfile builds a profile from the block entry counts of one run of fn.
func NewProfile(fn string, counts map[string]uint64) *Profile {
	fp := &FunctionProfile{Name: fn, Blocks: make(map[string]uint64, len(counts))}
	for label, n := range counts {
		fp.Blocks[label] = n
		fp.Total += n
	}

	p := &Profile{Functions: map[string]*FunctionProfile{fn: fp}}
	if fp.Total == 0 {
		return p
	}
	for label, n := range counts {
		pct := float64(n) * 100 / float64(fp.Total)
		if pct > hotPercent {
			p.Hotspots = append(p.Hotspots, Hotspot{Function: fn, Block: label, Count: n, Percent: pct})
		}
	}
	sort.Slice(p.Hotspots, func(i, j int) bool {
		if p.Hotspots[i].Count != p.Hotspots[j].Count {
			return p.Hotspots[i].Count > p.Hotspots[j].Count
		}
		return p.Hotspots[i].Block < p.Hotspots[j].Block
	})
	return p
}

// LoadProfile loads execution profile from file
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}

	return &profile, nil
}

// Save writes the profile as indented JSON.
func (p *Profile) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReorderBlocks keeps the entry block first and lays the remaining blocks
// out by descending entry count, so hot code sits together. Blocks the
// profile never saw keep their relative order at the end.
func ReorderBlocks(fn *ir.Function, profile *Profile) int {
	fp := profile.Functions[fn.Name]
	if fp == nil || len(fn.Blocks) < 3 {
		return 0
	}

	logger.Debug("Reordering blocks for better locality", "function", fn.Name)

	rest := append([]*ir.Block(nil), fn.Blocks[1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return fp.Blocks[rest[i].Label] > fp.Blocks[rest[j].Label]
	})

	moved := 0
	for i, block := range rest {
		if fn.Blocks[i+1] != block {
			moved++
		}
		fn.Blocks[i+1] = block
	}
	return moved
}
