package remap_test

import (
	"path/filepath"
	"testing"

	"github.com/hbomb79/Tasaveer/internal/remap"
	"github.com/stretchr/testify/assert"
)

func p(parts ...string) string {
	return filepath.Join(append([]string{string(filepath.Separator)}, parts...)...)
}

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		name string
		root string
		path string
		want string
	}{
		{"direct child is root", p("A", "B"), p("A", "B", "x.jpg"), "Root"},
		{"one level", p("A", "B"), p("A", "B", "2023", "x.jpg"), "2023"},
		{"nested", p("A", "B"), p("A", "B", "2023", "Trip", "x.jpg"), "2023/Trip"},
		{"trailing separator on root", p("A", "B") + string(filepath.Separator), p("A", "B", "2023", "x.jpg"), "2023"},
		{"outside root", p("A", "B"), p("C", "D", "x.jpg"), "C/D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remap.RelativeTo(tt.root, tt.path))
		})
	}
}

func TestStagedRelative(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"inside nested source folder", p("X", "stage", "B", "2023", "y.jpg"), "2023"},
		{"deeper", p("X", "stage", "B", "2023", "Trip", "y.jpg"), "2023/Trip"},
		{"directly in nested source folder", p("X", "stage", "B", "y.jpg"), "Root"},
		{"directly in staging root", p("X", "stage", "y.jpg"), "Root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remap.StagedRelative(p("X", "stage"), tt.path))
		})
	}
}

func TestStagedRelative_AgreesWithSourceKey(t *testing.T) {
	source := p("A", "B")
	staging := p("X", "stage")
	for _, rel := range [][]string{{"x.jpg"}, {"2023", "x.jpg"}, {"2023", "06", "x.jpg"}} {
		original := filepath.Join(append([]string{source}, rel...)...)
		staged := filepath.Join(append([]string{staging, "B"}, rel...)...)

		assert.Equal(t, remap.RelativeTo(source, original), remap.StagedRelative(staging, staged))
	}
}

func TestParentFolder(t *testing.T) {
	assert.Equal(t, "Trip", remap.ParentFolder(p("X", "2023", "Trip", "y.jpg")))
}
