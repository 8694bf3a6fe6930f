package main

import (
	"strconv"
	"strings"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
)

// parseRange reads "lower:upper" in msec.
func parseRange(s string) (types.Range, error) {
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return types.Range{}, errors.Errorf("range %q: want lower:upper", s)
	}
	lower, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return types.Range{}, errors.Wrapf(err, "range %q", s)
	}
	upper, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return types.Range{}, errors.Wrapf(err, "range %q", s)
	}
	r := types.Range{Lower: lower, Upper: upper}
	if !r.Valid() {
		return types.Range{}, errors.Errorf("range %q: lower must not exceed upper", s)
	}
	return r, nil
}

// parseSize reads "WIDTHxHEIGHT" in pixels.
func parseSize(s string) (types.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return types.Size{}, errors.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return types.Size{}, errors.Wrapf(err, "size %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return types.Size{}, errors.Wrapf(err, "size %q", s)
	}
	if width <= 0 || height <= 0 {
		return types.Size{}, errors.Errorf("size %q must be positive", s)
	}
	return types.Size{Width: width, Height: height}, nil
}
