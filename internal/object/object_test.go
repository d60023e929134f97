package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var intType = &TypeDescriptor{
	Name: "int",
	Eq: func(a, b *Header) bool {
		return a == b
	},
}

func TestHeaderInitStrongCountOne(t *testing.T) {
	var h Header
	h.Init(intType)
	require.EqualValues(t, 1, h.RC.StrongCount())
}

func TestImmortalSkipsRC(t *testing.T) {
	var h Header
	h.InitImmortal(intType)
	h.RC.IncStrong()
	require.False(t, h.RC.DecStrong())
}

func TestMonitorReentrant(t *testing.T) {
	var h Header
	h.Init(intType)
	k1 := h.Sync(1)
	k2 := h.Sync(1)
	k2.Unsync()
	k1.Unsync()
}

func TestMonitorCrossGoroutineUnlock(t *testing.T) {
	var h Header
	h.Init(intType)
	k := h.Sync(1)
	done := make(chan struct{})
	go func() {
		k.Unsync()
		close(done)
	}()
	<-done
	_, ok := h.TrySync(2)
	require.True(t, ok)
}
