package webrequest

import (
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/advblocker/advfilter/internal/advcache"
	cache "github.com/patrickmn/go-cache"
)

// tabInfo is the state of a browser tab.  It's never modified after it's
// stored; updates replace it.
type tabInfo struct {
	// frames maps the IDs of the frames of the tab to their URLs.
	frames map[int]string
}

// mainFrameURL returns the URL of the top-level document of the tab or an
// empty string if it's unknown.
func (t *tabInfo) mainFrameURL() (u string) {
	return t.frames[MainFrameID]
}

// tabStorage keeps the state of the tabs.  The state of the tabs not seen for
// the configured time expires.
type tabStorage struct {
	cache *cache.Cache

	// mu serializes the updates of the tabs.
	mu *sync.Mutex
}

// newTabStorage returns a new tab storage with the given expiration time.
func newTabStorage(ttl time.Duration) (s *tabStorage) {
	return &tabStorage{
		cache: cache.New(ttl, 2*ttl),
		mu:    &sync.Mutex{},
	}
}

// type check
var _ advcache.Clearer = (*tabStorage)(nil)

// Clear implements the [advcache.Clearer] interface for *tabStorage.
func (s *tabStorage) Clear() {
	s.cache.Flush()
}

// get returns the state of the tab with id.  If there is none, t is an empty
// state.
func (s *tabStorage) get(id int) (t *tabInfo) {
	v, ok := s.cache.Get(tabKey(id))
	if !ok {
		return &tabInfo{}
	}

	return v.(*tabInfo)
}

// recordFrame records the URL of the frame of the tab.  The top-level document
// resets the frames of the tab.
func (s *tabStorage) recordFrame(tabID, frameID int, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames map[int]string
	if frameID == MainFrameID {
		frames = map[int]string{}
	} else {
		frames = maps.Clone(s.get(tabID).frames)
		if frames == nil {
			frames = map[int]string{}
		}
	}

	frames[frameID] = url

	s.cache.SetDefault(tabKey(tabID), &tabInfo{
		frames: frames,
	})
}

// remove deletes the state of the tab.
func (s *tabStorage) remove(tabID int) {
	s.cache.Delete(tabKey(tabID))
}

// tabKey returns the cache key of the tab.
func tabKey(id int) (k string) {
	return strconv.Itoa(id)
}
