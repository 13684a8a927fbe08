// Package io reads point clouds from plain-text files: one point per
// line, whitespace-separated X Y Z coordinates. Format parsing is kept
// deliberately minimal; richer formats are out of scope for the pipeline
// and belong to whatever tool produced the cloud.
package io

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kwv/pcreg/registration"
)

// LoadXYZ reads a point cloud from path. Blank lines and lines starting
// with '#' are skipped; every other line must contain at least three
// floating-point fields, and only the first three are read.
func LoadXYZ(path string) (registration.PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading point cloud: %w", err)
	}
	defer f.Close()

	var cloud registration.PointCloud
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("parsing point cloud %s:%d: expected 3 fields, got %d", path, lineNo, len(fields))
		}
		p, err := parsePoint(fields[:3])
		if err != nil {
			return nil, fmt.Errorf("parsing point cloud %s:%d: %w", path, lineNo, err)
		}
		cloud = append(cloud, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading point cloud: %w", err)
	}
	return cloud, nil
}

func parsePoint(fields []string) (registration.Point, error) {
	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return registration.Point{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return registration.Point{X: float32(vals[0]), Y: float32(vals[1]), Z: float32(vals[2])}, nil
}

// SaveXYZ writes cloud to path in the same format LoadXYZ reads.
func SaveXYZ(path string, cloud registration.PointCloud) error {
	var sb strings.Builder
	for _, p := range cloud {
		fmt.Fprintf(&sb, "%g %g %g\n", p.X, p.Y, p.Z)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("writing point cloud: %w", err)
	}
	return nil
}
