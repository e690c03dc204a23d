package cache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapKV is an in-memory KV for tests. TTLs are recorded but never enforced.
type mapKV struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapKV() *mapKV {
	return &mapKV{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mapKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *mapKV) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *mapKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type page struct {
	Titles []string `json:"titles"`
	Total  int64    `json:"total"`
}

func TestReadCache_RoundTrip(t *testing.T) {
	kv := newMapKV()
	c := NewReadCacheWithKV(kv, time.Minute)
	ctx := context.Background()

	// enough repetition that gzip produces a real deflate block rather than
	// storing tiny input verbatim
	titles := make([]string, 256)
	for i := range titles {
		titles[i] = "chat about poaching eggs"
	}
	in := page{Titles: titles, Total: 256}
	require.NoError(t, c.SetCompressed(ctx, "k", in))

	var out page
	hit, err := c.GetCompressed(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, in, out)

	// stored bytes are compressed: much smaller than the marshaled JSON
	encoded, err := json.Marshal(in)
	require.NoError(t, err)
	raw := kv.data["k"]
	assert.Less(t, len(raw), len(encoded)/2)
	assert.Equal(t, time.Minute, kv.ttls["k"])
}

func TestReadCache_MissOnAbsentKey(t *testing.T) {
	c := NewReadCacheWithKV(newMapKV(), time.Minute)

	var out page
	hit, err := c.GetCompressed(context.Background(), "nope", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestReadCache_CorruptedEntryDeletedAndMissed(t *testing.T) {
	kv := newMapKV()
	c := NewReadCacheWithKV(kv, time.Minute)
	ctx := context.Background()

	kv.data["bad"] = []byte("not gzip at all")

	var out page
	hit, err := c.GetCompressed(ctx, "bad", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	_, exists := kv.data["bad"]
	assert.False(t, exists, "corrupted entry should be deleted")
}

func TestReadCache_CorruptedJSONInsideValidGzip(t *testing.T) {
	kv := newMapKV()
	c := NewReadCacheWithKV(kv, time.Minute)
	ctx := context.Background()

	compressed, err := compress([]byte("{truncated"))
	require.NoError(t, err)
	kv.data["bad"] = compressed

	var out page
	hit, err := c.GetCompressed(ctx, "bad", &out)
	require.NoError(t, err)
	assert.False(t, hit)
	_, exists := kv.data["bad"]
	assert.False(t, exists)
}

func TestReadCache_DeleteByPrefix(t *testing.T) {
	kv := newMapKV()
	c := NewReadCacheWithKV(kv, time.Minute)
	ctx := context.Background()

	owner := uuid.New()
	other := uuid.New()
	require.NoError(t, c.SetCompressed(ctx, ChatListKey(owner, 1, 20), page{}))
	require.NoError(t, c.SetCompressed(ctx, ChatListKey(owner, 2, 20), page{}))
	require.NoError(t, c.SetCompressed(ctx, ChatListKey(other, 1, 20), page{}))

	require.NoError(t, c.DeleteByPrefix(ctx, ChatListPrefix(owner)))

	var out page
	hit, _ := c.GetCompressed(ctx, ChatListKey(owner, 1, 20), &out)
	assert.False(t, hit)
	hit, _ = c.GetCompressed(ctx, ChatListKey(owner, 2, 20), &out)
	assert.False(t, hit)
	// the other owner's entries survive
	hit, _ = c.GetCompressed(ctx, ChatListKey(other, 1, 20), &out)
	assert.True(t, hit)
}

func TestReadCache_DeleteIsIdempotent(t *testing.T) {
	c := NewReadCacheWithKV(newMapKV(), time.Minute)
	ctx := context.Background()

	assert.NoError(t, c.Delete(ctx, "absent"))
	assert.NoError(t, c.DeleteByPrefix(ctx, "absent:"))
}

func TestKeyBuilders(t *testing.T) {
	owner := uuid.MustParse("0192aaaa-0000-7000-8000-000000000001")
	chat := uuid.MustParse("0192bbbb-0000-7000-8000-000000000002")

	assert.Equal(t, "chatList:"+owner.String()+":p2_s20", ChatListKey(owner, 2, 20))
	assert.True(t, strings.HasPrefix(ChatListKey(owner, 1, 50), ChatListPrefix(owner)))
	assert.Equal(t, "messages:"+owner.String()+":"+chat.String(), MessagesKey(owner, chat))
}
