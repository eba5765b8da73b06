package labels

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidateKeepsOnlyMergedFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "label_A.pdf")
	b := filepath.Join(dir, "label_B.pdf")

	require.NoError(t, Render(a, LabelData{TrackingNumber: "SIM-1", RecipientName: "Kari Nordmann", RecipientLine: "Storgata 1, 0155 Oslo", Test: true}))
	require.NoError(t, Render(b, LabelData{TrackingNumber: "SIM-2", RecipientName: "Ola Hansen", RecipientLine: "Fjordveien 9, 5003 Bergen"}))

	merged := filepath.Join(dir, "merged.pdf")
	require.NoError(t, Consolidate([]string{a, b}, merged))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "merged.pdf", entries[0].Name())

	pages, err := PageCount(merged)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
}

// blankPage writes a one-page PDF of the given size in millimetres.
func blankPage(t *testing.T, path string, wd, ht float64) {
	t.Helper()
	pdf := fpdf.NewCustom(&fpdf.InitType{OrientationStr: "P", UnitStr: "mm", Size: fpdf.SizeType{Wd: wd, Ht: ht}})
	pdf.AddPage()
	require.NoError(t, pdf.OutputFileAndClose(path))
}

func mmToPt(mm float64) float64 {
	return mm * 72 / 25.4
}

func TestConsolidateKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	widths := []float64{105, 148, 74}
	var paths []string
	for i, wd := range widths {
		p := filepath.Join(dir, fmt.Sprintf("label_%d.pdf", i))
		blankPage(t, p, wd, 148)
		paths = append(paths, p)
	}

	merged := filepath.Join(dir, "merged.pdf")
	require.NoError(t, Consolidate(paths, merged))

	dims, err := PageDims(merged)
	require.NoError(t, err)
	require.Len(t, dims, len(widths))
	for i, wd := range widths {
		assert.InDelta(t, mmToPt(wd), dims[i].Width, 1, "page %d", i+1)
	}
}

func TestConsolidateFailureKeepsSources(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "label_good.pdf")
	bad := filepath.Join(dir, "label_bad.pdf")
	require.NoError(t, Render(good, LabelData{TrackingNumber: "SIM-3"}))
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o644))

	err := Consolidate([]string{good, bad}, filepath.Join(dir, "merged.pdf"))
	require.Error(t, err)

	assert.FileExists(t, good)
	assert.FileExists(t, bad)
	assert.NoFileExists(t, filepath.Join(dir, "merged.pdf"))
}

func TestConsolidateNothing(t *testing.T) {
	err := Consolidate([]string{filepath.Join(t.TempDir(), "missing.pdf")}, filepath.Join(t.TempDir(), "out.pdf"))
	assert.ErrorIs(t, err, ErrNothingToMerge)
}

func TestMergedName(t *testing.T) {
	ts := time.Date(2025, 3, 1, 13, 4, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "labels_20250301T120405Z.pdf", MergedName(ts))
}

func TestMergedPathSkipsExistingSheets(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := MergedPath(dir, ts)
	assert.Equal(t, filepath.Join(dir, "labels_20250301T120000Z.pdf"), first)
	require.NoError(t, os.WriteFile(first, []byte("%PDF"), 0o644))

	second := MergedPath(dir, ts)
	assert.Equal(t, filepath.Join(dir, "labels_20250301T120000Z_2.pdf"), second)
	require.NoError(t, os.WriteFile(second, []byte("%PDF"), 0o644))

	assert.Equal(t, filepath.Join(dir, "labels_20250301T120000Z_3.pdf"), MergedPath(dir, ts))
}
