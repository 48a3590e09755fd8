package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"dir/sub/scan 01.png", "scan_01.png"},
		{`C:\docs\a.jpg`, "a.jpg"},
		{"..", "file"},
		{"  .hidden. ", "hidden"},
		{"发票.pdf", "_.pdf"},
		{"", "file"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeSegment(tt.in))
		})
	}
}

func TestSplitRelPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c.png"}, SplitRelPath("/a/./b//../c.png"))
	assert.Equal(t, []string{"x", "y.pdf"}, SplitRelPath(`x\y.pdf`))
	assert.Empty(t, SplitRelPath(""))
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	l, err := NewLayout(root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "t1"), l.TaskDir("t1"))
	assert.Equal(t, filepath.Join(root, "t1", "inputs"), l.InputsDir("t1"))
	assert.Equal(t, filepath.Join(root, "t1", "raw", "i1.jsonl"), l.RawFile("t1", "i1"))
	assert.Equal(t, filepath.Join(root, "t1", "i1", "page_2"), l.PageDir("t1", "i1", 2))
	assert.Equal(t, filepath.Join(root, "t1", "inputs", "folder", "a_b.png"), l.InputPath("t1", "folder/a b.png", "ignored"))
	assert.Equal(t, filepath.Join(root, "t1", "inputs", "x.pdf"), l.InputPath("t1", "", "x.pdf"))

	_, err = NewLayout("  ")
	assert.Error(t, err)
}

func TestResolveWithin(t *testing.T) {
	root := filepath.Join("srv", "out", "task", "item")

	got, ok := ResolveWithin(root, "page_0/imgs/a.jpg")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "page_0", "imgs", "a.jpg"), got)

	got, ok = ResolveWithin(root, "../../other/secret.md")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, "other", "secret.md"), got)

	_, ok = ResolveWithin(root, "")
	assert.False(t, ok)
	_, ok = ResolveWithin(root, "/../..")
	assert.False(t, ok)
}
