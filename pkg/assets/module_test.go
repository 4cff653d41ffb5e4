package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	opt "github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buffer bytes.Buffer
	require.NoError(t, png.Encode(&buffer, img))
	return buffer.Bytes()
}

func newLogoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	data := pngBytes(t)
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/broken.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	t.Cleanup(server.Close)

	return server, &hits
}

func waitForState(t *testing.T, cache *ImageCache, url string, want State) {
	require.Eventually(t, func() bool {
		state, ok := cache.State(url)
		return ok && state == want
	}, 5*time.Second, 5*time.Millisecond)
}

func TestImageCacheLoadsOnce(t *testing.T) {
	server, hits := newLogoServer(t)
	cache := NewImageCache(context.Background(), nil)
	url := server.URL + "/logo.png"

	// Not there yet; the first lookup only starts the load
	first := cache.Get(url)
	require.True(t, opt.IsNone(first))

	waitForState(t, cache, url, StateReady)

	loaded := cache.Get(url)
	require.False(t, opt.IsNone(loaded))
	require.Equal(t, 4, loaded.Value.Bounds().Dx())

	for i := 0; i < 10; i++ {
		require.False(t, opt.IsNone(cache.Get(url)))
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestImageCacheFailureIsSticky(t *testing.T) {
	server, hits := newLogoServer(t)
	cache := NewImageCache(context.Background(), nil)
	url := server.URL + "/broken.png"

	require.True(t, opt.IsNone(cache.Get(url)))
	waitForState(t, cache, url, StateFailed)

	for i := 0; i < 10; i++ {
		require.True(t, opt.IsNone(cache.Get(url)))
	}
	require.Equal(t, int32(1), hits.Load())
}

func TestImageCacheUsesStore(t *testing.T) {
	server, hits := newLogoServer(t)
	store := FSStore(t.TempDir())
	url := server.URL + "/logo.png"

	warm := NewImageCache(context.Background(), store)
	warm.Get(url)
	waitForState(t, warm, url, StateReady)
	require.Equal(t, int32(1), hits.Load())

	// A fresh cache finds the bytes in the store
	cold := NewImageCache(context.Background(), store)
	cold.Get(url)
	waitForState(t, cold, url, StateReady)
	require.Equal(t, int32(1), hits.Load())
}

func TestFSStore(t *testing.T) {
	store := FSStore(t.TempDir())
	ctx := context.Background()

	_, err := store.Get(ctx, "nothing")
	require.ErrorIs(t, err, Missing)

	require.NoError(t, store.Set(ctx, "key", []byte("value")))
	data, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), data)
}

func TestKey(t *testing.T) {
	require.Equal(t, Key("http://a/logo.png"), Key("http://a/logo.png"))
	require.NotEqual(t, Key("http://a/logo.png"), Key("http://b/logo.png"))
	require.Len(t, Key("anything"), 32)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStore(ctx, "", "", 0)
	require.NoError(t, err)
	require.IsType(t, NoStore{}, store)

	dir := filepath.Join(t.TempDir(), "logos")
	store, err = OpenStore(ctx, "", dir, 0)
	require.NoError(t, err)
	require.Equal(t, FSStore(dir), store)
	require.True(t, FileExists(dir))

	_, err = OpenStore(ctx, "not a redis url", "", 0)
	require.Error(t, err)
}
