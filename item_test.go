package keel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordItem struct {
	bound   bool
	unbound bool
	ctx     Context
	msgs    []interface{}
}

func (i *recordItem) OnBind(ctx Context) {
	i.bound = true
	i.ctx = ctx
}

func (i *recordItem) OnUnbind() {
	i.unbound = true
}

func (i *recordItem) ReceiveMessage(payload interface{}, reply ReplyFunc) {
	i.msgs = append(i.msgs, payload)
	if reply != nil {
		reply(payload)
	}
}

func TestItemRegistryBindUnbind(t *testing.T) {
	r := newItemRegistry()
	item := &recordItem{}

	assert.NoError(t, r.Bind(1, item))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(1)
	assert.True(t, ok)
	assert.Same(t, item, got.(*recordItem))

	removed, err := r.Unbind(1)
	assert.NoError(t, err)
	assert.Same(t, item, removed.(*recordItem))
	assert.Equal(t, 0, r.Len())
}

func TestItemRegistryDoubleBind(t *testing.T) {
	r := newItemRegistry()
	assert.NoError(t, r.Bind(1, &recordItem{}))
	assert.ErrorIs(t, r.Bind(1, &recordItem{}), ErrAlreadyBound)
	assert.Equal(t, 1, r.Len())
}

func TestItemRegistryUnbindUnknown(t *testing.T) {
	r := newItemRegistry()
	_, err := r.Unbind(42)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestItemRegistryReplace(t *testing.T) {
	r := newItemRegistry()
	first := &recordItem{}
	second := &recordItem{}

	// replacing an unknown id binds nothing
	_, swapped := r.Replace(1, second)
	assert.False(t, swapped)
	assert.Equal(t, 0, r.Len())

	assert.NoError(t, r.Bind(1, first))
	old, swapped := r.Replace(1, second)
	assert.True(t, swapped)
	assert.Same(t, first, old.(*recordItem))

	got, _ := r.Get(1)
	assert.Same(t, second, got.(*recordItem))
	assert.Equal(t, 1, r.Len())
}

type idleItem struct {
	recordItem
	periods []time.Duration
}

func (i *idleItem) OnIdleCheck(period time.Duration) {
	i.periods = append(i.periods, period)
}

func TestItemRegistryIdleCheck(t *testing.T) {
	r := newItemRegistry()
	capable := &idleItem{}
	assert.NoError(t, r.Bind(1, capable))
	assert.NoError(t, r.Bind(2, &recordItem{}))

	r.IdleCheck(time.Second)
	r.IdleCheck(time.Second)

	assert.Equal(t, []time.Duration{time.Second, time.Second}, capable.periods)
}
