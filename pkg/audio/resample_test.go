package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsample8to16(t *testing.T) {
	t.Run("midpoints and duplicated tail", func(t *testing.T) {
		got := Upsample8to16([]int16{0, 10, 20, -5})
		assert.Equal(t, []int16{0, 5, 10, 15, 20, 8, -5, -5}, got)
	})

	t.Run("rounds half up", func(t *testing.T) {
		assert.Equal(t, []int16{1, 2, 2, 2}, Upsample8to16([]int16{1, 2}))
		assert.Equal(t, []int16{-2, -1, -1, -1}, Upsample8to16([]int16{-2, -1}))
	})

	t.Run("extremes do not overflow", func(t *testing.T) {
		got := Upsample8to16([]int16{math.MaxInt16, math.MaxInt16, math.MinInt16})
		assert.Equal(t, []int16{math.MaxInt16, math.MaxInt16, math.MaxInt16, 0, math.MinInt16, math.MinInt16}, got)
	})

	t.Run("empty and single", func(t *testing.T) {
		assert.Empty(t, Upsample8to16(nil))
		assert.Equal(t, []int16{7, 7}, Upsample8to16([]int16{7}))
	})
}

func TestDownsample16to8(t *testing.T) {
	t.Run("averages pairs", func(t *testing.T) {
		assert.Equal(t, []int16{5, 25, -2}, Downsample16to8([]int16{0, 10, 20, 30, -3, -2}))
	})

	t.Run("drops trailing unpaired sample", func(t *testing.T) {
		assert.Equal(t, []int16{5}, Downsample16to8([]int16{4, 6, 1000}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Downsample16to8(nil))
		assert.Empty(t, Downsample16to8([]int16{1}))
	})
}

// Downsample16to8 averages pairs, so down(up(x))[i] is the mean of x[i] and
// the midpoint of x[i], x[i+1]: roughly (3*x[i] + x[i+1]) / 4. Reproducing
// every index but the last is therefore impossible (x = [100, 200] gives
// 125 at index 0). What holds is exactness where x[i] == x[i+1] and at the
// last index, plus an error bounded by a quarter of the local slope.
func TestResampleRoundTrip(t *testing.T) {
	t.Run("constant signal comes back exactly", func(t *testing.T) {
		x := []int16{-2000, -2000, -2000, -2000, -2000}
		assert.Equal(t, x, Downsample16to8(Upsample8to16(x)))
	})

	t.Run("held samples come back exactly", func(t *testing.T) {
		x := []int16{100, 100, 100, -2000, -2000, 32767, 32767, 0}
		got := Downsample16to8(Upsample8to16(x))
		require.Len(t, got, len(x))
		for i := range x {
			if i == len(x)-1 || x[i] == x[i+1] {
				assert.Equal(t, x[i], got[i], "index %d", i)
			}
		}
	})

	t.Run("tail is always exact", func(t *testing.T) {
		x := []int16{-32768, 32767, 12, -900}
		got := Downsample16to8(Upsample8to16(x))
		require.Len(t, got, len(x))
		assert.Equal(t, x[len(x)-1], got[len(got)-1])
	})

	t.Run("voice-band signal stays within a quarter of the local slope", func(t *testing.T) {
		// 300Hz tone sampled at 8kHz
		x := make([]int16, 160)
		for i := range x {
			x[i] = int16(12000 * math.Sin(2*math.Pi*300*float64(i)/TelephonySampleRate))
		}

		got := Downsample16to8(Upsample8to16(x))
		require.Len(t, got, len(x))
		for i := 0; i < len(x)-1; i++ {
			slope := math.Abs(float64(x[i+1]) - float64(x[i]))
			diff := math.Abs(float64(got[i]) - float64(x[i]))
			assert.LessOrEqual(t, diff, slope/4+1, "index %d", i)
		}
	})
}

func BenchmarkUpsample8to16(b *testing.B) {
	samples := make([]int16, 160) // 20ms at 8kHz
	for i := range samples {
		samples[i] = int16(i * 100)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Upsample8to16(samples)
	}
}
