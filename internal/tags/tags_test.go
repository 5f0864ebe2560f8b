package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		want      Tag
		expectErr bool
	}{
		{
			name:  "major minor",
			input: "toplevel:0.1-oldhash",
			want:  Tag{Image: "toplevel", Digits: []int{0, 1}, Hash: "oldhash"},
		},
		{
			name:  "single component",
			input: "harvardlil/web:1-oldhash",
			want:  Tag{Image: "harvardlil/web", Digits: []int{1}, Hash: "oldhash"},
		},
		{
			name:  "hash split on last dash",
			input: "registry.example.com/team/db:2.3.4-bd018100e5b1c9159130decc1fa8884c",
			want:  Tag{Image: "registry.example.com/team/db", Digits: []int{2, 3, 4}, Hash: "bd018100e5b1c9159130decc1fa8884c"},
		},
		{
			name:  "empty hash is allowed",
			input: "web:3-",
			want:  Tag{Image: "web", Digits: []int{3}, Hash: ""},
		},
		{name: "missing colon", input: "web-1-abc", expectErr: true},
		{name: "missing dash", input: "web:1.2", expectErr: true},
		{name: "empty image", input: ":1-abc", expectErr: true},
		{name: "non numeric component", input: "web:1.x-abc", expectErr: true},
		{name: "empty component", input: "web:1..2-abc", expectErr: true},
		{name: "negative component", input: "web:-1-abc", expectErr: true},
		{name: "dash inside digits", input: "web:1-2-abc", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.input)
			if tt.expectErr {
				require.ErrorIs(t, err, ErrMalformedTag)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestNextIncrementsLastComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		old  string
		want string
	}{
		{"toplevel:0.1-oldhash", "toplevel:0.2-newhash"},
		{"web:1-oldhash", "web:2-newhash"},
		{"web:1.9-oldhash", "web:1.10-newhash"},
		{"a/b/c:9.9.9-oldhash", "a/b/c:9.9.10-newhash"},
	}

	for _, tt := range tests {
		old, err := Parse(tt.old)
		require.NoError(t, err)

		next := old.Next("newhash")
		assert.Equal(t, tt.want, next.String())
		assert.Equal(t, old.Image, next.Image)
	}
}

func TestNextDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	old, err := Parse("web:1.2-oldhash")
	require.NoError(t, err)

	_ = old.Next("newhash")
	assert.Equal(t, []int{1, 2}, old.Digits)
	assert.Equal(t, "oldhash", old.Hash)
}

func TestVersion(t *testing.T) {
	t.Parallel()

	tag, err := Parse("example.com/proj/web:0.7-abc")
	require.NoError(t, err)
	assert.Equal(t, "0.7-abc", tag.Version())
	assert.Equal(t, "0.7", tag.DigitsString())
}
