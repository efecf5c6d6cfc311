package epsilon

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/epsilon/zc"
)

func FuzzDeserialize(f *testing.F) {
	f.Add(mustMarshal(f, sampleIndex(0)))
	f.Add(mustMarshal(f, sampleIndex(3)))
	f.Add(mustMarshal(f, Index[[]Point]{Name: "a much longer name"}))
	f.Fuzz(func(t *testing.T, data []byte) {
		// Malformed input must fail cleanly.
		_, _ = DeserializeEps[Index[[]Point], Index[[]Point]](nil, zc.AlignedCopy(data))
		_, _ = DeserializeFull[Index[[]Point]](nil, bytes.NewReader(data))
	})
}

func FuzzRoundTrip(f *testing.F) {
	f.Add("name", uint32(7), 1.5, -2.5, "")
	f.Fuzz(func(t *testing.T, name string, id uint32, x, y float64, tail string) {
		in := Doc{ID: id, Points: []Point{{X: x, Y: y}}, Name: name + tail}
		data := mustMarshal(t, in)
		full, err := UnmarshalFull[Doc](data)
		require.NoError(t, err)
		eps, err := DeserializeEps[Doc, Doc](nil, data)
		require.NoError(t, err)
		require.Equal(t, data, mustMarshal(t, full))
		require.Equal(t, data, mustMarshal(t, eps))
	})
}
