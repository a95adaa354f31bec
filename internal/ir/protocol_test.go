package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	timing := DefaultTiming()
	for id := 1; id <= 255; id++ {
		bursts := Encode(uint8(id), timing)
		require.Len(t, bursts, BurstCount)
		got, ok := Decode(bursts, timing)
		require.True(t, ok, "team_id=%d", id)
		assert.Equal(t, uint8(id), got)
	}
}

func TestEncodeBurstShape(t *testing.T) {
	timing := DefaultTiming()
	bursts := Encode(5, timing) // 5 = 0b00000101
	require.Len(t, bursts, BurstCount)
	assert.Equal(t, timing.StartBurst, bursts[0])
	assert.Equal(t, timing.EndBurst, bursts[BurstCount-1])

	// MSB-first: 0,0,0,0,0,1,0,1
	wantBits := []bool{false, false, false, false, false, true, false, true}
	for i, want := range wantBits {
		if want {
			assert.Equal(t, timing.Bit1Burst, bursts[i+1], "bit %d", i)
		} else {
			assert.Equal(t, timing.Bit0Burst, bursts[i+1], "bit %d", i)
		}
	}
}

func TestDecodeRejectsWrongBurstCount(t *testing.T) {
	timing := DefaultTiming()
	bursts := Encode(9, timing)
	_, ok := Decode(bursts[:BurstCount-1], timing)
	assert.False(t, ok)
	_, ok = Decode(append(bursts, timing.Bit0Burst), timing)
	assert.False(t, ok)
}

func TestDecodeToleranceBoundary(t *testing.T) {
	timing := DefaultTiming()
	bursts := Encode(42, timing)

	// Just inside tolerance on the start burst still decodes.
	inside := append([]time.Duration(nil), bursts...)
	inside[0] = timing.StartBurst + timing.Tolerance
	_, ok := Decode(inside, timing)
	assert.True(t, ok, "within tolerance should decode")

	// Just outside tolerance rejects.
	outside := append([]time.Duration(nil), bursts...)
	outside[0] = timing.StartBurst + timing.Tolerance + time.Microsecond
	_, ok = Decode(outside, timing)
	assert.False(t, ok, "beyond tolerance should not decode")
}

func TestDecodeRejectsAmbiguousDataBurst(t *testing.T) {
	timing := DefaultTiming()
	bursts := Encode(1, timing)
	// Push a data burst width to a no-man's-land between bit0 and bit1.
	bursts[1] = (timing.Bit0Burst + timing.Bit1Burst) / 2
	_, ok := Decode(bursts, timing)
	assert.False(t, ok)
}

func TestReceiverAccumulatesAndDecodes(t *testing.T) {
	timing := DefaultTiming()
	bursts := Encode(17, timing)
	r := NewReceiver(timing)

	now := time.Unix(0, 0)
	var gotID uint8
	var gotOK bool
	for i, w := range bursts {
		now = now.Add(w + timing.InterBitGap)
		gotID, gotOK = r.Observe(w, now)
		if i < len(bursts)-1 {
			assert.False(t, gotOK, "should not decode before the final burst")
		}
	}
	assert.True(t, gotOK)
	assert.Equal(t, uint8(17), gotID)
}

func TestReceiverResetsOnLongGap(t *testing.T) {
	timing := DefaultTiming()
	r := NewReceiver(timing)
	bursts := Encode(3, timing)

	now := time.Unix(0, 0)
	// Feed a partial frame, then let more than ResetGap elapse.
	_, ok := r.Observe(bursts[0], now)
	assert.False(t, ok)
	_, ok = r.Observe(bursts[1], now.Add(timing.InterBitGap))
	assert.False(t, ok)

	now = now.Add(timing.ResetGap + time.Millisecond)
	_, ok = r.Observe(bursts[0], now) // frame restarts with a fresh start burst

	// Feed the remaining 9 bursts of a full frame from here.
	for _, w := range bursts[1:] {
		now = now.Add(timing.InterBitGap)
		_, ok = r.Observe(w, now)
	}
	assert.True(t, ok)
}
