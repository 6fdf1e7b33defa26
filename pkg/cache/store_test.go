package cache

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tscache/cachetool/pkg/elog"
)

func createTestSpanFile(t *testing.T, size int64) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "span-*.img")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(size))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestStoreLoadSpanConfigDispatchesToEachEntry(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)
	configPath := writeTempConfig(t, spanPath+" volume=2\n")

	store := NewStore(true)
	ec := store.LoadSpan(configPath)
	require.True(t, ec.OK(), ec.String())

	require.Len(t, store.Spans, 1)
	assert.Equal(t, 2, store.Spans[0].VolIdx)
	assert.True(t, store.Spans[0].IsEmpty())
}

func TestStoreLoadSpanDirectPopulatesVolumesFromHeader(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	ec := store.loadSpanDirect(spanPath, 0)
	require.True(t, ec.OK(), ec.String())
	require.Len(t, store.Spans, 1)

	span := store.Spans[0]
	_, err := span.AllocStripe(4, span.Stripes[0].Len/2)
	require.NoError(t, err)
	require.True(t, span.UpdateHeader().OK())

	store2 := NewStore(false)
	ec2 := store2.loadSpanDirect(spanPath, 0)
	require.True(t, ec2.OK(), ec2.String())
	require.Contains(t, store2.Volumes, 4)
	assert.Len(t, store2.Volumes[4].Stripes, 1)
}

func TestCalcTotalSpanConfiguredSize(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	require.True(t, store.loadSpanDirect(spanPath, 0).OK())

	assert.Greater(t, int64(store.CalcTotalSpanConfiguredSize()), int64(0))
}

func TestDumpSpansReportsUninitializedBeforeHeaderWritten(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	require.True(t, store.loadSpanDirect(spanPath, 0).OK())

	var buf bytes.Buffer
	store.DumpSpans(&buf, DumpSpan, nil)
	assert.Contains(t, buf.String(), "is uninitialized")
}

func TestDumpSpansReportsHeaderAfterUpdateHeader(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	require.True(t, store.loadSpanDirect(spanPath, 0).OK())
	require.True(t, store.Spans[0].UpdateHeader().OK())

	var buf bytes.Buffer
	store.DumpSpans(&buf, DumpStripe, nil)
	out := buf.String()
	assert.Contains(t, out, "Span:")
	assert.Contains(t, out, "free")
}

type fakeReporter struct {
	labels     []string
	increments int
	finished   int
}

func (f *fakeReporter) NewProgress(label string, total int64) elog.Progress {
	f.labels = append(f.labels, label)
	return &fakeProgress{r: f}
}

type fakeProgress struct{ r *fakeReporter }

func (p *fakeProgress) Increment(n int64)   { p.r.increments++ }
func (p *fakeProgress) Finish(success bool) { p.r.finished++ }

func TestDumpSpansReportsProgressAtDirectoryDepth(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	require.True(t, store.loadSpanDirect(spanPath, 0).OK())
	require.True(t, store.Spans[0].UpdateHeader().OK())

	reporter := &fakeReporter{}
	var buf bytes.Buffer
	store.DumpSpans(&buf, DumpDirectory, reporter)

	assert.Len(t, reporter.labels, 1)
	assert.Equal(t, spanPath, reporter.labels[0])
	assert.Equal(t, 1, reporter.increments)
	assert.Equal(t, 1, reporter.finished)
}

func TestDumpSpansValidatesMetadataAtStripeDepth(t *testing.T) {
	spanPath := createTestSpanFile(t, 300*1024*1024)

	store := NewStore(true)
	require.True(t, store.loadSpanDirect(spanPath, 0).OK())
	span := store.Spans[0]

	half := span.Stripes[0].Len / 2
	st, err := span.AllocStripe(3, half)
	require.NoError(t, err)
	require.True(t, st.InitializeMeta().OK())
	require.True(t, span.UpdateHeader().OK())

	var buf bytes.Buffer
	store.DumpSpans(&buf, DumpStripe, nil)
	assert.Contains(t, buf.String(), "Stripe found")
}

func TestDumpVolumesSortsByIndex(t *testing.T) {
	store := NewStore(false)
	store.Volumes[3] = &Volume{Idx: 3}
	store.Volumes[1] = &Volume{Idx: 1}

	var buf bytes.Buffer
	store.DumpVolumes(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Volume 1"))
	assert.True(t, strings.HasPrefix(lines[1], "Volume 3"))
}
