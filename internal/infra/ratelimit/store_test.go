package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_MemoryWhenNoAddr(t *testing.T) {
	s := NewStore(RedisConfig{})
	require.NotNil(t, s)
	require.NoError(t, s.Set("k", []byte("v"), time.Minute))
	v, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestNewStore_FallsBackWhenRedisUnreachable(t *testing.T) {
	assert.NotNil(t, NewStore(RedisConfig{Addr: "127.0.0.1:1"}))
}

func TestNewStore_UsesRedis(t *testing.T) {
	mrs, err := miniredis.Run()
	require.NoError(t, err)
	defer mrs.Close()

	s := NewStore(RedisConfig{Addr: mrs.Addr()})
	require.NoError(t, s.Set("limiter", []byte("1"), time.Minute))
	got, err := mrs.Get("limiter")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}
