package task

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimBlankLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"only_blank", "\n  \n\t\n", ""},
		{"surrounding", "\n\n  line one\nline two  \n\n", "  line one\nline two  "},
		{"inner_blank_kept", "a\n\nb", "a\n\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trimBlankLines(tt.in))
		})
	}
}

func TestMergeMarkdown(t *testing.T) {
	assert.Equal(t, "", mergeMarkdown(nil))
	assert.Equal(t, "one", mergeMarkdown([]string{"\none\n"}))
	assert.Equal(t, "one\n\n---\n\ntwo", mergeMarkdown([]string{"one", "\n \n", "two\n"}))
}

func TestWriteMerged(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.md")
	b := filepath.Join(dir, "b.md")
	require.NoError(t, os.WriteFile(a, []byte("# A\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("\n# B"), 0o644))

	path, err := writeMerged(dir, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, MergedFileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# A\n\n---\n\n# B", string(data))

	_, err = writeMerged(dir, []string{filepath.Join(dir, "missing.md")})
	assert.Error(t, err)
}
