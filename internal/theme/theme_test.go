package theme

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects published modes.
type recorder struct {
	mu    sync.Mutex
	modes []Mode
}

func (r *recorder) publish(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, m)
}

func (r *recorder) got() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mode(nil), r.modes...)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		attr string
		want Mode
	}{
		{"dark", Dark},
		{"antialiased dark scroll-smooth", Dark},
		{"light", Light},
		{"", Light},
		{"darker", Light},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.attr), "attr %q", tt.attr)
	}
}

func TestEditorTheme(t *testing.T) {
	assert.Equal(t, "vs-dark", Dark.EditorTheme())
	assert.Equal(t, "vs-light", Light.EditorTheme())
}

func TestParseSetting(t *testing.T) {
	s, err := ParseSetting("")
	require.NoError(t, err)
	assert.Equal(t, Auto, s)

	s, err = ParseSetting(" DARK ")
	require.NoError(t, err)
	assert.Equal(t, FixedDark, s)

	_, err = ParseSetting("sepia")
	assert.Error(t, err)
}

func TestObserver_AutoRepublishesOncePerToggle(t *testing.T) {
	src := NewStaticSource("light")
	var rec recorder
	o := NewObserver(Auto, src, rec.publish, quietLogger())
	require.NoError(t, o.Start())
	defer o.Close()

	src.Set("dark")
	src.Set("dark antialiased") // still dark: no publish
	src.Set("")
	src.Set("dark")

	assert.Equal(t, []Mode{Light, Dark, Light, Dark}, rec.got())
	assert.Equal(t, Dark, o.Mode())
}

// switchOnWatch flips its attribute to dark while the watch is being
// installed, before any watcher could be told about it.
type switchOnWatch struct {
	*StaticSource
}

func (s switchOnWatch) Watch(onChange func()) (func(), error) {
	s.StaticSource.Set("dark")
	return s.StaticSource.Watch(onChange)
}

func TestObserver_ChangeDuringStartIsPublished(t *testing.T) {
	src := switchOnWatch{NewStaticSource("light")}
	var rec recorder
	o := NewObserver(Auto, src, rec.publish, quietLogger())
	require.NoError(t, o.Start())
	defer o.Close()

	assert.Equal(t, []Mode{Dark}, rec.got())
	assert.Equal(t, Dark, o.Mode())
}

func TestObserver_FixedSettingSkipsWatcher(t *testing.T) {
	src := NewStaticSource("dark")
	var rec recorder
	o := NewObserver(FixedLight, src, rec.publish, quietLogger())
	require.NoError(t, o.Start())
	defer o.Close()

	assert.Equal(t, 0, src.Watchers())
	src.Set("light dark")
	assert.Equal(t, []Mode{Light}, rec.got())
}

func TestObserver_NoLeakedWatchersAcrossMounts(t *testing.T) {
	src := NewStaticSource("dark")

	for i := 0; i < 10; i++ {
		var rec recorder
		o := NewObserver(Auto, src, rec.publish, quietLogger())
		require.NoError(t, o.Start())
		assert.Equal(t, 1, src.Watchers())
		o.Close()
		o.Close()
	}
	assert.Equal(t, 0, src.Watchers())
}

func TestObserver_NothingPublishedAfterClose(t *testing.T) {
	src := NewStaticSource("")
	var rec recorder
	o := NewObserver(Auto, src, rec.publish, quietLogger())
	require.NoError(t, o.Start())
	o.Close()

	src.Set("dark")
	assert.Equal(t, []Mode{Light}, rec.got())
}

func TestObserver_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "html-class")
	require.NoError(t, os.WriteFile(path, []byte("light"), 0o644))

	src := NewFileSource(path, 10*time.Millisecond, quietLogger())
	var rec recorder
	o := NewObserver(Auto, src, rec.publish, quietLogger())
	require.NoError(t, o.Start())
	assert.Equal(t, []Mode{Light}, rec.got())
	assert.Equal(t, 1, src.Watchers())

	require.NoError(t, os.WriteFile(path, []byte("dark"), 0o644))
	assert.Eventually(t, func() bool {
		got := rec.got()
		return len(got) == 2 && got[1] == Dark
	}, 2*time.Second, 10*time.Millisecond)

	o.Close()
	assert.Equal(t, 0, src.Watchers())
}

func TestObserver_MissingFileFallsBackToLight(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "missing"), 10*time.Millisecond, quietLogger())
	var rec recorder
	o := NewObserver(Auto, src, rec.publish, quietLogger())

	// Watching a missing file fails, but the initial mode is still published.
	assert.Error(t, o.Start())
	assert.Equal(t, []Mode{Light}, rec.got())
	o.Close()
}

func TestCurrent(t *testing.T) {
	src := NewStaticSource("font-sans dark")

	assert.Equal(t, Dark, Current(Auto, src))
	assert.Equal(t, Light, Current(FixedLight, src))
	assert.Equal(t, Dark, Current(FixedDark, NewStaticSource("")))
	assert.Equal(t, Light, Current(Auto, nil))
	assert.Equal(t, Light, Current(Auto, NewFileSource(filepath.Join(t.TempDir(), "missing"), time.Second, quietLogger())))
}
