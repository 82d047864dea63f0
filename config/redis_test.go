package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectRedis_TestEnvSkipsConnection(t *testing.T) {
	rdb, err := ConnectRedis()
	assert.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestGetRedisClient_NotInitialized(t *testing.T) {
	SetRedisClientForTest(nil)

	client := GetRedisClient()
	assert.Nil(t, client)
}

func TestRedisTestHelpers_SetAndReset(t *testing.T) {
	original := GetRedisClient()
	defer SetRedisClientForTest(original)

	SetRedisClientForTest(nil)
	assert.Nil(t, GetRedisClient())

	ResetRedisClientForTest()
	assert.Nil(t, GetRedisClient())

	SetRedisClientForTest(original)
	assert.Equal(t, original, GetRedisClient())
}

func TestConnectRedis_ConcurrentCalls(t *testing.T) {
	type callResult struct {
		err error
	}
	done := make(chan callResult, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := ConnectRedis()
			done <- callResult{err: err}
		}()
	}

	for i := 0; i < 5; i++ {
		res := <-done
		assert.NoError(t, res.err)
	}
}
