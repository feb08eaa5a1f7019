package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/utils"
)

const fixtureYAML = `
users:
  - id: creator
    handle: "@Creator"
    wallet: 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
  - id: u1
    handle: viewer
posts:
  - id: p1
    creator: creator
    title: sunset
    media: media/sunset.jpg
    price_lamports: 500000000
    status: published
  - id: p2
    creator: creator
    title: free sample
    media: media/sample.jpg
    status: published
unlocks:
  - user: u1
    post: p1
    amount_lamports: 500000000
    signature: sig1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// sqliteConfig writes a config pointing at a fresh sqlite file.
func sqliteConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return writeFile(t, dir, "config.yaml", "storage:\n  driver: sqlite\n  path: "+filepath.Join(dir, "paywall.db")+"\n")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"serve", "migrate", "seed", "unlocks"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	for _, flag := range []string{"config", "verbose", "format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "migrate")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSeedAndUnlocks(t *testing.T) {
	cfg := sqliteConfig(t)
	fixture := writeFile(t, t.TempDir(), "demo.yaml", fixtureYAML)

	out, err := run(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")

	out, err = run(t, "--config", cfg, "--format", "json", "seed", fixture)
	require.NoError(t, err)
	var res SeedResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, SeedResult{Users: 2, Posts: 2, Unlocks: 1}, res)

	// a second run only skips
	out, err = run(t, "--config", cfg, "--format", "json", "seed", fixture)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, SeedResult{Skipped: 5}, res)

	out, err = run(t, "--config", cfg, "--format", "json", "unlocks", "u1")
	require.NoError(t, err)
	var list UnlocksResult
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Unlocks, 1)
	assert.Equal(t, "p1", list.Unlocks[0].PostID)
	assert.Equal(t, uint64(500_000_000), list.Total)

	out, err = run(t, "--config", cfg, "unlocks", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "0.500")

	out, err = run(t, "--config", cfg, "unlocks", "nobody")
	require.NoError(t, err)
	assert.Contains(t, out, "No unlocks for nobody.")
}

func TestSeedRejectsInvalidPost(t *testing.T) {
	st := db.NewMemoryStore()
	fx := &Fixture{Posts: []FixturePost{{Title: "no media", Creator: "creator"}}}
	_, err := Seed(context.Background(), st, fx, utils.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `post "no media"`)
}

func TestSeedNormalizesHandles(t *testing.T) {
	ctx := context.Background()
	st := db.NewMemoryStore()
	fx := &Fixture{Users: []FixtureUser{{ID: "a", Handle: "@Alice"}, {ID: "b", Handle: "alice"}}}
	res, err := Seed(ctx, st, fx, utils.Discard)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Users: 1, Skipped: 1}, res)

	u, err := st.GetUser(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Handle)
}

func TestDemoFixture(t *testing.T) {
	fx, err := ReadFixture(filepath.Join("..", "..", "fixtures", "demo.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	st := db.NewMemoryStore()
	res, err := Seed(ctx, st, fx, utils.Discard)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Users: 2, Posts: 3}, res)

	p, err := st.GetPost(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, "draft", string(p.Status))
	assert.Equal(t, "video", string(p.MediaType))
}
