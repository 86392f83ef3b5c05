package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/fissurewatch/internal/fissure"
)

func TestFormatTime(t *testing.T) {
	now := time.Now()

	// A day this year that is not today.
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.Local)
	if y, m, d := now.Date(); y == sameYear.Year() && m == time.March && d == 15 {
		sameYear = sameYear.AddDate(0, 0, 1)
	}

	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.Local)

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "never", formatTime(time.Time{}))
	})

	t.Run("today", func(t *testing.T) {
		today := time.Date(now.Year(), now.Month(), now.Day(), 9, 5, 7, 0, time.Local)
		assert.Equal(t, "09:05:07", formatTime(today))
	})

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"TIER", "MISSION", "NODE"}
	rows := [][]string{
		{"Lith", "Survival", "Mot (Void)"},
		{"Requiem", "Spy", "Kappa (Sedna)"},
	}

	printTable(&buf, headers, rows)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "TIER     MISSION   NODE"), lines[0])
	assert.Contains(t, lines[1], "Lith")
	assert.Contains(t, lines[2], "Kappa (Sedna)")

	// Columns line up and rows carry no trailing padding.
	assert.Equal(t, strings.Index(lines[0], "MISSION"), strings.Index(lines[1], "Survival"))
	assert.False(t, strings.HasSuffix(lines[1], " "))
}

func TestPrintTable_WideRunes(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NODE", "ETA"}, [][]string{
		{"ミモザ", "5m"},
		{"Mot", "1h"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	// ミモザ spans six cells, so ETA starts at cell 8 on every line.
	assert.Equal(t, "NODE    ETA", lines[0])
	assert.Equal(t, "ミモザ  5m", lines[1])
	assert.Equal(t, "Mot     1h", lines[2])
}

func TestDisplayWidth(t *testing.T) {
	assert.Equal(t, 0, displayWidth(""))
	assert.Equal(t, 8, displayWidth("Survival"))
	assert.Equal(t, 6, displayWidth("ミモザ"))
	assert.Equal(t, 4, displayWidth("Ｌｉ"))
}

func TestFissureFlags(t *testing.T) {
	assert.Equal(t, "-", fissureFlags(&fissure.Fissure{}))
	assert.Equal(t, "steel-path", fissureFlags(&fissure.Fissure{IsHard: true}))
	assert.Equal(t, "steel-path,storm,expired", fissureFlags(&fissure.Fissure{IsHard: true, IsStorm: true, Expired: true}))
}

func TestPrintFissures(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer

		printFissures(&buf, nil)
		assert.Equal(t, "No fissures match the current filter.\n", buf.String())
	})

	t.Run("server order kept", func(t *testing.T) {
		var buf bytes.Buffer

		printFissures(&buf, []fissure.Fissure{
			{ID: "b", Tier: "Neo", MissionType: "Defense", Node: "Hydron", Enemy: "Grineer", ETA: "12m"},
			{ID: "a", Tier: "Axi", MissionType: "Capture", Node: "Gaia", Enemy: "Corpus", ETA: "40m", IsStorm: true},
		})

		out := buf.String()
		assert.Contains(t, out, "ETA")
		assert.Less(t, strings.Index(out, "Hydron"), strings.Index(out, "Gaia"))
		assert.Contains(t, out, "storm")
	})
}
