package util

import (
	"container/list"
	"sync"

	"github.com/raihanakbr/lokapasar/model"
	"gorm.io/gorm"
)

// LRU cache mapping a normalized login identifier (email) to a user ID, so
// attempt-ledger rows can link to an account without a users query per write.

type identEntry struct {
	identifier string
	userID     uint
}

type identLRU struct {
	mu       sync.Mutex
	ll       *list.List
	cache    map[string]*list.Element
	capacity int
}

var identCache *identLRU

// InitUserIDCache initializes the identifier cache with the given capacity.
// If capacity <= 0, a default of 1000 is used.
func InitUserIDCache(capacity int) {
	if capacity <= 0 {
		capacity = 1000
	}
	identCache = &identLRU{
		ll:       list.New(),
		cache:    make(map[string]*list.Element),
		capacity: capacity,
	}
}

// UserIDCacheGet returns the cached user ID for an identifier, if present.
func UserIDCacheGet(identifier string) (uint, bool) {
	if identCache == nil {
		return 0, false
	}
	identCache.mu.Lock()
	defer identCache.mu.Unlock()
	if ele, ok := identCache.cache[identifier]; ok {
		identCache.ll.MoveToFront(ele)
		if e, ok := ele.Value.(identEntry); ok {
			return e.userID, true
		}
	}
	return 0, false
}

// UserIDCacheSet stores the user ID for an identifier, evicting the least
// recently used entry when the cache is full.
func UserIDCacheSet(identifier string, userID uint) {
	if identCache == nil {
		return
	}
	identCache.mu.Lock()
	defer identCache.mu.Unlock()
	if ele, ok := identCache.cache[identifier]; ok {
		identCache.ll.MoveToFront(ele)
		ele.Value = identEntry{identifier: identifier, userID: userID}
		return
	}
	ele := identCache.ll.PushFront(identEntry{identifier: identifier, userID: userID})
	identCache.cache[identifier] = ele
	if identCache.ll.Len() > identCache.capacity {
		tail := identCache.ll.Back()
		if tail != nil {
			if e, ok := tail.Value.(identEntry); ok {
				delete(identCache.cache, e.identifier)
			}
			identCache.ll.Remove(tail)
		}
	}
}

// ResolveUserID returns the user ID for a normalized identifier, consulting
// the cache before the users table. Returns nil when no account matches;
// a miss is not cached so fresh signups resolve on the next attempt.
func ResolveUserID(db *gorm.DB, identifier string) *uint {
	if identifier == "" || db == nil {
		return nil
	}
	if id, ok := UserIDCacheGet(identifier); ok {
		return &id
	}
	var user model.User
	if err := db.Select("id").Where("email = ?", identifier).First(&user).Error; err != nil {
		return nil
	}
	UserIDCacheSet(identifier, user.ID)
	id := user.ID
	return &id
}
