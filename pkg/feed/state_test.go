package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		name string
		from State
		in   Transition
		want State
	}{
		{"dial from disconnected", StateDisconnected, TransitionDial, StateConnecting},
		{"dial from backing off", StateBackingOff, TransitionDial, StateConnecting},
		{"connect ok", StateConnecting, TransitionConnectOK, StateConnected},
		{"connect ok ignored when not connecting", StateDisconnected, TransitionConnectOK, StateDisconnected},
		{"error while connecting", StateConnecting, TransitionError, StateBackingOff},
		{"error while connected", StateConnected, TransitionError, StateBackingOff},
		{"error ignored while backing off", StateBackingOff, TransitionError, StateBackingOff},
		{"backoff done", StateBackingOff, TransitionBackoffDone, StateConnecting},
		{"backoff done ignored elsewhere", StateConnected, TransitionBackoffDone, StateConnected},
		{"shutdown from connected", StateConnected, TransitionShutdown, StateClosed},
		{"shutdown from backing off", StateBackingOff, TransitionShutdown, StateClosed},
		{"closed is terminal", StateClosed, TransitionDial, StateClosed},
		{"closed swallows errors", StateClosed, TransitionError, StateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Next(tc.from, tc.in))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "backing_off", StateBackingOff.String())
	assert.Equal(t, "closed", StateClosed.String())
}
