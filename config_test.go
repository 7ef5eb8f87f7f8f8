package keel

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, runtime.NumCPU(), cfg.NumWorkers)
	assert.Equal(t, time.Millisecond, cfg.SelectTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.IdleCheckFrequency)
	assert.Equal(t, 128<<10, cfg.ReadBufferSize)
	assert.Equal(t, 4<<20, cfg.OutputBufferSize)
	assert.Equal(t, 64, cfg.CommandBatch)

	// zero means connections never idle out
	assert.Equal(t, time.Duration(0), cfg.MaxIdleTime)
}

func TestConfigExplicitValuesKept(t *testing.T) {
	cfg := Config{
		NumWorkers:         3,
		SelectTimeout:      2 * time.Millisecond,
		IdleCheckFrequency: time.Second,
		MaxIdleTime:        time.Minute,
		ReadBufferSize:     1 << 10,
		OutputBufferSize:   1 << 20,
		CommandBatch:       8,
	}.withDefaults()

	assert.Equal(t, 3, cfg.NumWorkers)
	assert.Equal(t, 2*time.Millisecond, cfg.SelectTimeout)
	assert.Equal(t, time.Second, cfg.IdleCheckFrequency)
	assert.Equal(t, time.Minute, cfg.MaxIdleTime)
	assert.Equal(t, 1<<10, cfg.ReadBufferSize)
	assert.Equal(t, 1<<20, cfg.OutputBufferSize)
	assert.Equal(t, 8, cfg.CommandBatch)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{SelectTimeout: 100 * time.Microsecond}
	assert.Error(t, cfg.validate())

	assert.NoError(t, Config{}.withDefaults().validate())
}
