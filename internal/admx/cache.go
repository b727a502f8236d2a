package admx

import (
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Cache memoizes compiled bundles per (definitions dir, language) so
// consecutive policy operations do not re-parse the template folder.
type Cache struct {
	mu      sync.Mutex
	fs      afero.Fs
	bundles map[string]*Bundle
}

// NewCache returns a cache reading template folders through fs.
func NewCache(fs afero.Fs) *Cache {
	return &Cache{fs: fs, bundles: make(map[string]*Bundle)}
}

func cacheKey(dir, languageCode string) string {
	return strings.ToLower(dir) + "|" + strings.ToLower(languageCode)
}

// Get returns the compiled bundle for dir and languageCode, loading it on
// first use. Per-file load failures are returned alongside the bundle only
// on the load that discovered them.
func (c *Cache) Get(dir, languageCode string) (*Bundle, []*LoadFailure, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(dir, languageCode)
	if bundle, ok := c.bundles[key]; ok {
		return bundle, nil, nil
	}

	bundle := NewBundle()
	failures, err := bundle.LoadFolder(c.fs, dir, languageCode)
	if err != nil {
		return nil, failures, err
	}
	c.bundles[key] = bundle
	return bundle, failures, nil
}

// Invalidate drops the cached bundle for dir and languageCode, forcing a
// reload on the next Get. Used after new template files are installed.
func (c *Cache) Invalidate(dir, languageCode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bundles, cacheKey(dir, languageCode))
}
