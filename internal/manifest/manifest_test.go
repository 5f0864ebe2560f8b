package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const referenceOverride = `
services:
  toplevel:
    build:
      context: .
      x-bake:
        tags:
          - toplevel:0.1-oldhash
      x-hash-paths:
        - a.txt
        - subdir/b.txt
  subdir:
    build:
      context: subdir
      x-bake:
        tags:
          - subdir:1-oldhash
      x-hash-paths:
        - b.txt
  db:
    image: postgres:16
`

func TestOverridePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "docker-compose.override.yml", OverridePath("docker-compose.yml"))
	assert.Equal(t, "foo/compose.override.yml", OverridePath("foo/compose.yaml"))
	assert.Equal(t, "foo/compose.override.yml", OverridePath("foo/compose"))
}

func TestParseOverrideReference(t *testing.T) {
	t.Parallel()

	specs, err := ParseOverride("/repo", []byte(referenceOverride))
	require.NoError(t, err)
	require.Len(t, specs, 3)

	top := specs[0]
	assert.Equal(t, "toplevel", top.Name)
	assert.Equal(t, "/repo", top.Context)
	assert.Equal(t, DefaultDockerfile, top.Dockerfile)
	assert.Equal(t, []string{"a.txt", "subdir/b.txt"}, top.HashPaths)
	assert.Equal(t, "toplevel:0.1-oldhash", top.CurrentTag)
	assert.Equal(t, "{'context': '.', 'x-bake': {}, 'x-hash-paths': ['a.txt', 'subdir/b.txt']}", top.Metadata)
	assert.True(t, top.Hashed())

	sub := specs[1]
	assert.Equal(t, "subdir", sub.Name)
	assert.Equal(t, "/repo/subdir", sub.Context)
	assert.Equal(t, "{'context': 'subdir', 'x-bake': {}, 'x-hash-paths': ['b.txt']}", sub.Metadata)

	db := specs[2]
	assert.Equal(t, "db", db.Name)
	assert.False(t, db.Hashed())
}

func TestParseOverrideMetadataKeepsOtherSettings(t *testing.T) {
	t.Parallel()

	doc := `
services:
  web:
    build:
      dockerfile: docker/Dockerfile
      args:
        DEBUG: yes
        WORKERS: 4
        RATIO: 0.5
        NAME: "it's"
        EMPTY:
      x-bake:
        platforms: [linux/amd64]
        tags: [web:1-abc, web:latest]
      x-hash-paths: [src]
`
	specs, err := ParseOverride(".", []byte(doc))
	require.NoError(t, err)
	require.Len(t, specs, 1)

	web := specs[0]
	assert.Equal(t, ".", web.Context)
	assert.Equal(t, "docker/Dockerfile", web.Dockerfile)
	assert.Equal(t, "web:1-abc", web.CurrentTag)
	assert.Equal(t,
		`{'dockerfile': 'docker/Dockerfile', 'args': {'DEBUG': True, 'WORKERS': 4, 'RATIO': 0.5, 'NAME': "it's", 'EMPTY': None}, `+
			`'x-bake': {'platforms': ['linux/amd64']}, 'x-hash-paths': ['src']}`,
		web.Metadata)
}

func TestParseOverrideSkipsUnhashedServices(t *testing.T) {
	t.Parallel()

	doc := `
services:
  short:
    build: ./short
  nobuild:
    image: redis
  emptypaths:
    build:
      x-hash-paths: []
`
	specs, err := ParseOverride(".", []byte(doc))
	require.NoError(t, err)
	require.Len(t, specs, 3)
	for _, s := range specs {
		assert.False(t, s.Hashed(), s.Name)
	}
}

func TestParseOverrideMissingTag(t *testing.T) {
	t.Parallel()

	for name, doc := range map[string]string{
		"no x-bake": `
services:
  web:
    build:
      x-hash-paths: [a.txt]
`,
		"no tags": `
services:
  web:
    build:
      x-bake: {}
      x-hash-paths: [a.txt]
`,
		"empty tags": `
services:
  web:
    build:
      x-bake:
        tags: []
      x-hash-paths: [a.txt]
`,
	} {
		_, err := ParseOverride(".", []byte(doc))
		assert.ErrorIs(t, err, ErrMissingTag, name)
	}
}

func TestParseOverrideRejectsBadShapes(t *testing.T) {
	t.Parallel()

	_, err := ParseOverride(".", []byte("- a\n- b\n"))
	assert.Error(t, err)

	_, err = ParseOverride(".", []byte("services: [a]\n"))
	assert.Error(t, err)

	_, err = ParseOverride(".", []byte("services:\n  web:\n    build:\n      x-hash-paths: a.txt\n"))
	assert.Error(t, err)

	specs, err := ParseOverride(".", []byte(""))
	assert.NoError(t, err)
	assert.Empty(t, specs)
}

func TestParseOverrideFollowsAliases(t *testing.T) {
	t.Parallel()

	doc := `
x-paths: &paths
  - a.txt
services:
  web:
    build:
      x-bake:
        tags: [web:1-abc]
      x-hash-paths: *paths
`
	specs, err := ParseOverride(".", []byte(doc))
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, []string{"a.txt"}, specs[0].HashPaths)
	assert.Equal(t, "{'x-bake': {}, 'x-hash-paths': ['a.txt']}", specs[0].Metadata)
}

func TestPyString(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"plain":       `'plain'`,
		"it's":        `"it's"`,
		`both ' and "`: `'both \' and "'`,
		`back\slash`:  `'back\\slash'`,
		"tab\there":   `'tab\there'`,
		"bell\x07":    `'bell\x07'`,
		"café":        `'café'`,
	}
	for in, want := range tests {
		assert.Equal(t, want, pyString(in), in)
	}
}

func TestPyFloat(t *testing.T) {
	t.Parallel()

	tests := map[float64]string{
		0.5:     "0.5",
		1:       "1.0",
		-0.25:   "-0.25",
		1e16:    "1e+16",
		1.5e-05: "1.5e-05",
		0.0001:  "0.0001",
		1234567: "1234567.0",
	}
	for in, want := range tests {
		assert.Equal(t, want, pyFloat(in))
	}
}

func TestPyScalarQuotedBoolStaysString(t *testing.T) {
	t.Parallel()

	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`{a: "yes", b: yes, c: 0x10}`), &n))
	m := n.Content[0]
	assert.Equal(t, "'yes'", pyScalar(m.Content[1]))
	assert.Equal(t, "True", pyScalar(m.Content[3]))
	assert.Equal(t, "16", pyScalar(m.Content[5]))
}

func TestPyScalarYAML11Resolution(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`1e3`:                          "'1e3'",
		`1.0e+3`:                       "1000.0",
		`.5`:                           "0.5",
		`-.inf`:                        "-inf",
		`1:30`:                         "90",
		`-1:30`:                        "-90",
		`1:30.5`:                       "90.5",
		`017`:                          "15",
		`0b101`:                        "5",
		`1_000`:                        "1000",
		`08`:                           "'08'",
		`0o17`:                         "'0o17'",
		`~`:                            "None",
		`2001-12-14`:                   "datetime.date(2001, 12, 14)",
		`2001-12-14t21:59:43.10-05:00`: "datetime.datetime(2001, 12, 14, 21, 59, 43, 100000, tzinfo=datetime.timezone(datetime.timedelta(days=-1, seconds=68400)))",
		`2001-12-14 21:59:00Z`:         "datetime.datetime(2001, 12, 14, 21, 59, tzinfo=datetime.timezone.utc)",
		`2002-12-14 02:00:00 +05:30`:   "datetime.datetime(2002, 12, 14, 2, 0, tzinfo=datetime.timezone(datetime.timedelta(seconds=19800)))",
		`2001-12-14T21:59:43`:          "datetime.datetime(2001, 12, 14, 21, 59, 43)",
	}
	for in, want := range tests {
		var n yaml.Node
		require.NoError(t, yaml.Unmarshal([]byte("v: "+in), &n), in)
		assert.Equal(t, want, pyScalar(n.Content[0].Content[1]), in)
	}
}

func TestPyScalarExplicitTags(t *testing.T) {
	t.Parallel()

	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`{a: !!str 1:30, b: !!int "12", c: !!float "1"}`), &n))
	m := n.Content[0]
	assert.Equal(t, "'1:30'", pyScalar(m.Content[1]))
	assert.Equal(t, "12", pyScalar(m.Content[3]))
	assert.Equal(t, "1.0", pyScalar(m.Content[5]))
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	text := "image: web:1-old # web:1-old\nother: db:0.1-old\n"
	got := Substitute(text, []Replacement{
		{Old: "web:1-old", New: "web:2-new"},
		{Old: "", New: "ignored"},
		{Old: "db:0.1-old", New: "db:0.2-new"},
	})
	assert.Equal(t, "image: web:2-new # web:2-new\nother: db:0.2-new\n", got)
}

func TestDocumentSaveOnlyWhenChanged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte("image: web:1-old\n"), 0o600))

	doc, err := ReadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, dir, doc.Dir())

	require.NoError(t, doc.Save())
	assert.False(t, doc.Changed())

	doc.Apply([]Replacement{{Old: "web:1-old", New: "web:2-new"}})
	assert.True(t, doc.Changed())
	require.NoError(t, doc.Save())
	assert.False(t, doc.Changed())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image: web:2-new\n", string(data))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadDocumentMissing(t *testing.T) {
	t.Parallel()

	_, err := ReadDocument(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
