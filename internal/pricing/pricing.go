// Package pricing is the single option to credit table. Submission computes
// totals from it and stored records are checked against it.
package pricing

import (
	"sort"
	"strings"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
)

// Option is one purchasable tuning service.
type Option struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Credits int    `json:"credits"`
}

// Table maps option keys to their definition.
type Table map[string]Option

var defaultOptions = []Option{
	{Key: "stage1", Label: "Stage 1", Credits: 50},
	{Key: "stage2", Label: "Stage 2", Credits: 75},
	{Key: "dpf_off", Label: "DPF Off", Credits: 30},
	{Key: "egr_off", Label: "EGR Off", Credits: 20},
	{Key: "adblue_off", Label: "AdBlue Off", Credits: 40},
	{Key: "dtc_off", Label: "DTC Off", Credits: 15},
	{Key: "immo_off", Label: "Immo Off", Credits: 25},
	{Key: "speed_limiter", Label: "Speed Limiter Off", Credits: 20},
	{Key: "pops_bangs", Label: "Pops & Bangs", Credits: 30},
	{Key: "launch_control", Label: "Launch Control", Credits: 25},
	{Key: "start_stop_off", Label: "Start/Stop Off", Credits: 10},
	{Key: "hot_start", Label: "Hot Start Fix", Credits: 15},
}

// Default returns the shop's standard price list.
func Default() Table {
	t := make(Table, len(defaultOptions))
	for _, o := range defaultOptions {
		t[o.Key] = o
	}
	return t
}

// Normalize maps a key or a display label ("Stage 1") to its table key.
func (t Table) Normalize(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := t[key]; ok {
		return key, true
	}
	for k, o := range t {
		if strings.EqualFold(o.Label, strings.TrimSpace(raw)) {
			return k, true
		}
	}
	return "", false
}

// Price resolves the requested options into the per-option cost map stored on
// a record, plus its total. Duplicates collapse; unknown options fail.
func (t Table) Price(requested []string) (map[string]int, int, error) {
	if len(requested) == 0 {
		return nil, 0, apperrors.New(apperrors.KindValidation, "at least one tuning option is required")
	}
	costs := make(map[string]int, len(requested))
	for _, raw := range requested {
		key, ok := t.Normalize(raw)
		if !ok {
			return nil, 0, apperrors.Newf(apperrors.KindValidation, "unknown tuning option %q", raw)
		}
		costs[key] = t[key].Credits
	}
	return costs, Sum(costs), nil
}

// Sum adds up a per-option cost map.
func Sum(costs map[string]int) int {
	total := 0
	for _, c := range costs {
		total += c
	}
	return total
}

// List returns the options sorted by key.
func (t Table) List() []Option {
	out := make([]Option, 0, len(t))
	for _, o := range t {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
