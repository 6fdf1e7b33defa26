package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := DirEntry{
		Offset: 0x1234567,
		Big:    2,
		Size:   0x3F,
		Tag:    0x0AB,
		Phase:  true,
		Head:   false,
		Pinned: true,
		Token:  false,
		Next:   42,
	}

	buf := e.Encode()
	assert.Len(t, buf, SizeofDirEntry)

	decoded := DecodeDirEntry(buf)
	assert.Equal(t, e.Offset, decoded.Offset)
	assert.Equal(t, e.Big, decoded.Big)
	assert.Equal(t, e.Size, decoded.Size)
	assert.Equal(t, e.Tag, decoded.Tag)
	assert.Equal(t, e.Phase, decoded.Phase)
	assert.Equal(t, e.Head, decoded.Head)
	assert.Equal(t, e.Pinned, decoded.Pinned)
	assert.Equal(t, e.Token, decoded.Token)
	assert.Equal(t, e.Next, decoded.Next)
}

func TestDirEntryIsEmpty(t *testing.T) {
	var e DirEntry
	assert.True(t, e.IsEmpty())

	e.Offset = 1
	assert.False(t, e.IsEmpty())
}

func TestBucketWalkFollowsChainToEnd(t *testing.T) {
	entries := make([]DirEntry, 8)
	entries[1] = DirEntry{Offset: 1, Next: 3}
	entries[3] = DirEntry{Offset: 1, Next: 5}
	entries[5] = DirEntry{Offset: 1, Next: 0}

	visited, err := BucketWalk(entries, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, []uint16{1, 3, 5}, visited)
}

func TestBucketWalkDetectsCycle(t *testing.T) {
	entries := make([]DirEntry, 8)
	entries[1] = DirEntry{Offset: 1, Next: 3}
	entries[3] = DirEntry{Offset: 1, Next: 1}

	_, err := BucketWalk(entries, 1, 2)
	assert.Error(t, err)
}

func TestBucketWalkDetectsOverrun(t *testing.T) {
	entries := make([]DirEntry, 4)
	entries[0] = DirEntry{Offset: 1, Next: 1}
	entries[1] = DirEntry{Offset: 1, Next: 0}

	_, err := BucketWalk(entries, 0, 0)
	assert.Error(t, err)
}
