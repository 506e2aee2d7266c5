package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableLayout(t *testing.T) {
	m := MasterInfo{
		LogVersion:     72,
		GameVersion:    1,
		LogFileDetails: "FFXIV|7.1",
		Actors:         "a1\na2",
		Abilities:      "b1",
		Tuples:         "",
		Pets:           "p1",
	}

	want := "72|1|FFXIV|7.1\n" +
		"2\na1\na2\n" +
		"1\nb1\n" +
		"0\n" +
		"1\np1\n"
	assert.Equal(t, want, m.Table())
}

func TestTableFiltersBlankLinesBeforeCounting(t *testing.T) {
	m := MasterInfo{
		LogVersion:  72,
		GameVersion: 1,
		Actors:      "a1\n\n   \na2\n",
	}

	want := "72|1|\n" +
		"2\na1\na2\n" +
		"0\n0\n0\n"
	assert.Equal(t, want, m.Table())
}

func TestTableAllSectionsEmpty(t *testing.T) {
	m := MasterInfo{LogVersion: 72, GameVersion: 1}

	assert.Equal(t, "72|1|\n0\n0\n0\n0\n", m.Table())
}

func TestTableRebuildReflectsLatestSections(t *testing.T) {
	// Between two pulls the actor list grows; rebuilding must pick up
	// the newer material with no residue of the earlier table.
	m := MasterInfo{LogVersion: 72, GameVersion: 1, Actors: "a1"}
	first := m.Table()

	m.Actors = "a1\na2"
	second := m.Table()

	assert.NotEqual(t, first, second)
	assert.Contains(t, second, "2\na1\na2\n")
}
