package matrix

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m, err := New(2, []float32{1, 2, 3, 4})
		require.NoError(t, err)
		assert.Equal(t, 2, m.N)
		assert.Equal(t, float32(3), m.At(1, 0))
		assert.Equal(t, 16, m.ByteSize())
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := New(2, []float32{1, 2, 3})
		assert.ErrorIs(t, err, ErrPrecondition)
	})

	t.Run("non-positive dimension", func(t *testing.T) {
		_, err := New(0, nil)
		assert.ErrorIs(t, err, ErrPrecondition)
	})
}

func TestIdentityAndZeros(t *testing.T) {
	id := Identity(3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			expected := float32(0)
			if i == j {
				expected = 1
			}
			assert.Equal(t, expected, id.At(i, j))
		}
	}

	z := Zeros(4)
	assert.Len(t, z.Data, 16)
	assert.Equal(t, float32(0), MaxAbs(z.Data))
}

func TestRandom(t *testing.T) {
	m, err := Random(64)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	for i, v := range m.Data {
		if v < -1 || v >= 1 {
			t.Fatalf("value %v at %d outside [-1, 1)", v, i)
		}
	}
	// 4096 uniform samples are not all of one sign.
	assert.Less(t, MaxAbs(m.Data), float32(1))
	var neg, pos int
	for _, v := range m.Data {
		if v < 0 {
			neg++
		} else {
			pos++
		}
	}
	assert.Greater(t, neg, 0)
	assert.Greater(t, pos, 0)
}

func TestRandomIndependentStreams(t *testing.T) {
	a, err := Random(8)
	require.NoError(t, err)
	b, err := Random(8)
	require.NoError(t, err)
	assert.NotEqual(t, a.Data, b.Data)
}

func TestRandomWithSource(t *testing.T) {
	a, err := RandomWithSource(8, rand.NewPCG(1, 2))
	require.NoError(t, err)
	b, err := RandomWithSource(8, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)

	_, err = RandomWithSource(-1, rand.NewPCG(1, 2))
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestMaxAbsDiff(t *testing.T) {
	mae, err := MaxAbsDiff([]float32{1, 2, 3}, []float32{1, 2.5, 2})
	require.NoError(t, err)
	assert.Equal(t, float32(1), mae)

	_, err = MaxAbsDiff([]float32{1}, []float32{1, 2})
	assert.ErrorIs(t, err, ErrPrecondition)

	mae, err = MaxAbsDiff([]float32{float32(math.NaN()), 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(mae)))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, float32(10), Checksum([]float32{1, 2, 3, 4}))
	assert.Equal(t, float32(0), Checksum(nil))
}

func TestClone(t *testing.T) {
	m := Identity(2)
	c := m.Clone()
	c.Data[0] = 7
	assert.Equal(t, float32(1), m.Data[0])
}
