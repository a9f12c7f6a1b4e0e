package shapeindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLine is one fixture feature: a two-point polyline plus its attributes.
type testLine struct {
	x1, y1, x2, y2 float64
	attrs          Attrs
}

func writeTestLayer(t *testing.T, dir, name string, lines []testLine) string {
	t.Helper()
	path := filepath.Join(dir, name+".shp")

	w, err := shp.Create(path, shp.POLYLINE)
	require.NoError(t, err)
	w.SetFields([]shp.Field{
		shp.StringField("d_masterma", 40),
		shp.StringField("d_neutralm", 40),
		shp.StringField("d_orientat", 20),
		shp.StringField("d_runtype", 20),
	})
	for i, ln := range lines {
		w.Write(shp.NewPolyLine([][]shp.Point{{
			{X: ln.x1, Y: ln.y1},
			{X: ln.x2, Y: ln.y2},
		}}))
		require.NoError(t, w.WriteAttribute(i, 0, ln.attrs.Master))
		require.NoError(t, w.WriteAttribute(i, 1, ln.attrs.Neutral))
		require.NoError(t, w.WriteAttribute(i, 2, ln.attrs.Orientation))
		require.NoError(t, w.WriteAttribute(i, 3, ln.attrs.RunType))
	}
	w.Close()
	// go-shp 0.1.1 writes the attribute table as "<stem>dbf"; the reader
	// opens "<stem>.dbf".
	stem := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(stem+"dbf", stem+".dbf"))
	return path
}

func TestQueryFindsCoincidentLine(t *testing.T) {
	path := writeTestLayer(t, t.TempDir(), "lines", []testLine{
		{0, 0, 100, 0, Attrs{Master: "1/0 AAAC", Neutral: "#2 ACSR", RunType: "OH"}},
		{0, 1000, 100, 1000, Attrs{Master: "4/0 AAAC"}},
	})

	l, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())

	m := l.Query(0, 0, 100, 0)
	require.True(t, m.OK)
	assert.Equal(t, 0, m.Feature)
	assert.Equal(t, "1/0 AAAC", m.Attrs.Master)
	assert.Equal(t, "#2 ACSR", m.Attrs.Neutral)
	assert.InDelta(t, 0, m.Dist1, 1e-9)
	assert.InDelta(t, 0, m.Dist2, 1e-9)

	m = l.Query(0, 998, 100, 998)
	require.True(t, m.OK)
	assert.Equal(t, 1, m.Feature)
	assert.InDelta(t, 2, m.Dist1, 1e-9)
}

func TestQueryScoresByFarEndpoint(t *testing.T) {
	// Feature 0 hugs point 1 but runs away from point 2; feature 1 stays a
	// moderate distance from both. The max-of-endpoints score must pick 1.
	path := writeTestLayer(t, t.TempDir(), "lines", []testLine{
		{0, 0, 0, 5, Attrs{Master: "near-one-end"}},
		{10, 0, 10, 100, Attrs{Master: "near-both"}},
	})

	l, err := Load(path)
	require.NoError(t, err)

	m := l.Query(0, 0, 0, 100)
	require.True(t, m.OK)
	assert.Equal(t, "near-both", m.Attrs.Master)
}

func TestQueryTieKeepsFirstFeature(t *testing.T) {
	path := writeTestLayer(t, t.TempDir(), "lines", []testLine{
		{0, 0, 100, 0, Attrs{Master: "first"}},
		{0, 0, 100, 0, Attrs{Master: "second"}},
	})

	l, err := Load(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		m := l.Query(10, 1, 90, 1)
		require.True(t, m.OK)
		assert.Equal(t, "first", m.Attrs.Master)
	}
}

func TestQueryEmptyLayer(t *testing.T) {
	path := writeTestLayer(t, t.TempDir(), "empty", nil)

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Query(0, 0, 1, 1).OK)
}

func TestQueryFallsBackOutsideMargin(t *testing.T) {
	path := writeTestLayer(t, t.TempDir(), "lines", []testLine{
		{100000, 100000, 100100, 100000, Attrs{Master: "far"}},
	})

	l, err := Load(path)
	require.NoError(t, err)

	// Nothing within 500 units of the query, but the lone feature still wins.
	m := l.Query(0, 0, 10, 0)
	require.True(t, m.OK)
	assert.Equal(t, "far", m.Attrs.Master)
}

func TestQueryWithIndexMatchesLinearScan(t *testing.T) {
	// Enough features to cross the R-tree threshold.
	var lines []testLine
	for i := 0; i < 40; i++ {
		y := float64(i * 200)
		lines = append(lines, testLine{0, y, 100, y, Attrs{Master: fmt.Sprintf("row-%d", i)}})
	}
	path := writeTestLayer(t, t.TempDir(), "grid", lines)

	l, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, l.index)

	for _, row := range []int{0, 7, 39} {
		y := float64(row * 200)
		m := l.Query(5, y+1, 95, y-1)
		require.True(t, m.OK)
		assert.Equal(t, fmt.Sprintf("row-%d", row), m.Attrs.Master)
	}
}

func TestDirStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeTestLayer(t, dir, "lines", []testLine{
		{0, 0, 100, 0, Attrs{Master: "1/0 AAAC", RunType: "OH"}},
	})

	store := NewDirStore()
	_, ok := store.Load(path)
	assert.False(t, ok, "no cache entry yet")

	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(path, l.data()))
	assert.FileExists(t, filepath.Join(dir, ".cache", "lines.gob"))

	data, ok := store.Load(path)
	require.True(t, ok)
	restored := fromData(data)
	assert.Equal(t, l.Len(), restored.Len())

	m := restored.Query(0, 0, 100, 0)
	require.True(t, m.OK)
	assert.Equal(t, "1/0 AAAC", m.Attrs.Master)
}

func TestDirStoreStaleEntryIgnored(t *testing.T) {
	dir := t.TempDir()
	path := writeTestLayer(t, dir, "lines", []testLine{
		{0, 0, 100, 0, Attrs{Master: "x"}},
	})

	store := NewDirStore()
	l, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(path, l.data()))

	// Make the shapefile newer than the cache entry.
	src, err := os.Stat(path)
	require.NoError(t, err)
	newer := src.ModTime().Add(2e9)
	require.NoError(t, os.Chtimes(path, newer, newer))

	_, ok := store.Load(path)
	assert.False(t, ok)
}

func TestCacheLoadsOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeTestLayer(t, dir, "lines", []testLine{
		{0, 0, 100, 0, Attrs{Master: "x"}},
	})

	c := NewCache(NewDirStore())
	l1, err := c.Get(path)
	require.NoError(t, err)
	l2, err := c.Get(path)
	require.NoError(t, err)
	assert.Same(t, l1, l2)

	// A second cache restores from the gob entry rather than the shapefile.
	c2 := NewCache(NewDirStore())
	l3, err := c2.Get(path)
	require.NoError(t, err)
	assert.Equal(t, l1.Len(), l3.Len())

	_, err = c.Get(filepath.Join(dir, "missing.shp"))
	require.Error(t, err)
}
