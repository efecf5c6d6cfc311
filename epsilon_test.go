package epsilon

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"testing/quick"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestZeroCopyRoundTrip(t *testing.T) {
	condition := func(p Point) bool {
		data := mustMarshal(t, p)
		full, err := UnmarshalFull[Point](data)
		require.NoError(t, err)
		ref, err := DeserializeEps[Point, *Point](nil, data)
		require.NoError(t, err)
		require.True(t, within(data, unsafe.Pointer(ref)))
		return assert.ObjectsAreEqual(p, full) && assert.ObjectsAreEqual(p, *ref)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestPaddedRoundTrip(t *testing.T) {
	condition := func(s Sample) bool {
		data := mustMarshal(t, s)
		full, err := UnmarshalFull[Sample](data)
		require.NoError(t, err)
		ref, err := DeserializeEps[Sample, *Sample](nil, data)
		require.NoError(t, err)
		return assert.ObjectsAreEqual(s, full) && assert.ObjectsAreEqual(s, *ref)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestDeepRoundTrip(t *testing.T) {
	condition := func(d Doc) bool {
		data := mustMarshal(t, d)
		full, err := UnmarshalFull[Doc](data)
		require.NoError(t, err)
		eps, err := DeserializeEps[Doc, Doc](nil, data)
		require.NoError(t, err)
		return assert.ObjectsAreEqual(d, full) && assert.ObjectsAreEqual(d, eps)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestScalarSequences(t *testing.T) {
	type Lists struct {
		U8   []uint8
		I16  []int16
		U32  []uint32
		I64  []int64
		F32  []float32
		F64  []float64
		Bool []bool
		Strs []string
	}
	condition := func(l Lists) bool {
		data := mustMarshal(t, l)
		full, err := UnmarshalFull[Lists](data)
		require.NoError(t, err)
		eps, err := DeserializeEps[Lists, Lists](nil, data)
		require.NoError(t, err)
		return assert.ObjectsAreEqual(l, full) && assert.ObjectsAreEqual(l, eps)
	}
	require.NoError(t, quick.Check(condition, &quick.Config{}))
}

func TestEpsSequenceAliasesBuffer(t *testing.T) {
	in := make([]uint32, 1000)
	for i := range in {
		in[i] = uint32(i * 7)
	}
	data := mustMarshal(t, in)
	out, err := DeserializeEps[[]uint32, []uint32](nil, data)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.True(t, within(data, unsafe.Pointer(unsafe.SliceData(out))))

	empty, err := DeserializeEps[[]uint32, []uint32](nil, mustMarshal(t, []uint32{}))
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestEpsAllocationsConstant(t *testing.T) {
	e := New(Options{})
	allocs := func(n int) float64 {
		in := make([]uint32, n)
		data := mustMarshal(t, in)
		_, err := DeserializeEps[[]uint32, []uint32](e, data)
		require.NoError(t, err)
		return testing.AllocsPerRun(100, func() {
			_, _ = DeserializeEps[[]uint32, []uint32](e, data)
		})
	}
	small, large := allocs(10), allocs(1000)
	require.Equal(t, small, large)
	require.LessOrEqual(t, large, 8.0)
}

func TestPrimitiveException(t *testing.T) {
	data := mustMarshal(t, uint64(42))
	require.Len(t, data, HeaderSize+8)
	v, err := DeserializeEps[uint64, uint64](nil, data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), v)

	_, err = DeserializeEps[uint64, *uint64](nil, data)
	require.True(t, errors.Is(err, ErrResultType), "%v", err)

	data = mustMarshal(t, [1]uint64{42})
	tuple, err := DeserializeEps[[1]uint64, *[1]uint64](nil, data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), tuple[0])
	require.True(t, within(data, unsafe.Pointer(tuple)))

	data = mustMarshal(t, Wrapped{V: 42})
	w, err := DeserializeEps[Wrapped, *Wrapped](nil, data)
	require.NoError(t, err)
	require.Equal(t, uint64(42), w.V)
	require.True(t, within(data, unsafe.Pointer(w)))
}

func TestNestedSubstitution(t *testing.T) {
	in := Outer[[][]uint32]{Data: [][]uint32{{1, 2, 3}, {}, {4, 5}}}
	data := mustMarshal(t, in)
	out, err := DeserializeEps[Outer[[][]uint32], Outer[[][]uint32]](nil, data)
	require.NoError(t, err)
	require.Equal(t, in, out)
	for _, inner := range out.Data {
		if len(inner) > 0 {
			require.True(t, within(data, unsafe.Pointer(unsafe.SliceData(inner))))
		}
	}

	full, err := UnmarshalFull[Outer[[][]uint32]](data)
	require.NoError(t, err)
	require.Equal(t, in, full)
	require.False(t, within(data, unsafe.Pointer(unsafe.SliceData(full.Data[0]))))
}

func TestParamProjection(t *testing.T) {
	in := Pair[Point, []uint32]{First: Point{X: 1, Y: 2}, Second: []uint32{9, 8}}
	data := mustMarshal(t, in)
	out, err := DeserializeEps[Pair[Point, []uint32], Pair[*Point, []uint32]](nil, data)
	require.NoError(t, err)
	require.Equal(t, in.First, *out.First)
	require.True(t, within(data, unsafe.Pointer(out.First)))
	require.Equal(t, in.Second, out.Second)
	// Non-param fields are owned.
	require.False(t, within(data, unsafe.Pointer(unsafe.SliceData(out.Second))))

	idx := Index[[]Point]{Name: "grid", Points: []Point{{X: 1}, {Y: 2}}}
	data = mustMarshal(t, idx)
	got, err := DeserializeEps[Index[[]Point], Index[[]Point]](nil, data)
	require.NoError(t, err)
	require.Equal(t, idx, got)
	require.True(t, within(data, unsafe.Pointer(unsafe.SliceData(got.Points))))
}

func TestStringsAlias(t *testing.T) {
	data := mustMarshal(t, Outer[string]{Data: "hello"})
	out, err := DeserializeEps[Outer[string], Outer[string]](nil, data)
	require.NoError(t, err)
	require.Equal(t, "hello", out.Data)
	require.True(t, within(data, unsafe.Pointer(unsafe.StringData(out.Data))))
}

func TestPointers(t *testing.T) {
	type Holder struct {
		P *Point   `eps:"param"`
		N *uint64  `eps:"param"`
		S *[]int16 `eps:"param"`
	}
	n := uint64(5)
	in := Holder{P: &Point{X: 3}, N: &n, S: &[]int16{-1, 1}}
	data := mustMarshal(t, in)

	full, err := UnmarshalFull[Holder](data)
	require.NoError(t, err)
	require.Equal(t, in, full)

	eps, err := DeserializeEps[Holder, Holder](nil, data)
	require.NoError(t, err)
	require.Equal(t, in, eps)
	require.True(t, within(data, unsafe.Pointer(eps.P)))
	require.False(t, within(data, unsafe.Pointer(eps.N)))
	require.True(t, within(data, unsafe.Pointer(unsafe.SliceData(*eps.S))))

	data = mustMarshal(t, Holder{})
	require.Len(t, data, HeaderSize+3)
	none, err := UnmarshalFull[Holder](data)
	require.NoError(t, err)
	require.Equal(t, Holder{}, none)
	none, err = DeserializeEps[Holder, Holder](nil, data)
	require.NoError(t, err)
	require.Equal(t, Holder{}, none)
}

func TestOptionalTerminatesList(t *testing.T) {
	in := Node{V: 1, Next: &Node{V: 2, Next: &Node{V: 3}}}
	data := mustMarshal(t, in)
	full, err := UnmarshalFull[Node](data)
	require.NoError(t, err)
	require.Equal(t, in, full)
	require.Nil(t, full.Next.Next.Next)

	eps, err := DeserializeEps[Node, Node](nil, data)
	require.NoError(t, err)
	require.Equal(t, in, eps)

	single, err := UnmarshalFull[Node](mustMarshal(t, Node{V: 9}))
	require.NoError(t, err)
	require.Equal(t, Node{V: 9}, single)
}

func TestPresenceTag(t *testing.T) {
	data := mustMarshal(t, Outer[*uint64]{})
	require.Equal(t, []byte{0}, data[HeaderSize:])

	data[HeaderSize] = 2
	_, err := UnmarshalFull[Outer[*uint64]](data)
	require.True(t, errors.Is(err, ErrInvalidValue), "%v", err)
	_, err = DeserializeEps[Outer[*uint64], Outer[*uint64]](nil, data)
	require.True(t, errors.Is(err, ErrInvalidValue), "%v", err)
}

func TestInterchangeableSequences(t *testing.T) {
	items := []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	growable := mustMarshal(t, items)
	fixed := mustMarshal(t, NewFixedSeq(items...))
	iterated := mustMarshal(t, SeqOf(items))
	require.Equal(t, growable, fixed)
	require.Equal(t, growable, iterated)

	asFixed, err := UnmarshalFull[FixedSeq[Point]](growable)
	require.NoError(t, err)
	require.Equal(t, FixedSeq[Point](items), asFixed)

	asSlice, err := UnmarshalFull[[]Point](fixed)
	require.NoError(t, err)
	require.Equal(t, items, asSlice)

	epsFixed, err := DeserializeEps[FixedSeq[Point], FixedSeq[Point]](nil, growable)
	require.NoError(t, err)
	require.Equal(t, FixedSeq[Point](items), epsFixed)

	epsSlice, err := DeserializeEps[[]Point, []Point](nil, fixed)
	require.NoError(t, err)
	require.Equal(t, items, epsSlice)
}

func TestSeqIter(t *testing.T) {
	words := []string{"a", "bb", "ccc"}
	data := mustMarshal(t, NewSeqIter(len(words), slices.Values(words)))
	out, err := UnmarshalFull[[]string](data)
	require.NoError(t, err)
	require.Equal(t, words, out)

	_, err = UnmarshalFull[SeqIter[string]](data)
	require.True(t, errors.Is(err, ErrUnsupportedType), "%v", err)
	_, err = DeserializeEps[SeqIter[string], []string](nil, data)
	require.True(t, errors.Is(err, ErrUnsupportedType), "%v", err)

	_, err = Serialize(nil, &bytes.Buffer{}, NewSeqIter(3, slices.Values([]uint32{1, 2})))
	require.True(t, errors.Is(err, ErrIteratorLength), "%v", err)
	var lenErr *IteratorLengthError
	require.True(t, errors.As(err, &lenErr))
	require.Equal(t, IteratorLengthError{Expected: 3, Actual: 2}, *lenErr)

	_, err = Serialize(nil, &bytes.Buffer{}, NewSeqIter(1, slices.Values([]uint32{1, 2})))
	require.True(t, errors.As(err, &lenErr))
	require.Equal(t, 2, lenErr.Actual)

	endless := func(yield func(uint32) bool) {
		for i := uint32(0); yield(i); i++ {
		}
	}
	_, err = Serialize(nil, &bytes.Buffer{}, NewSeqIter[uint32](3, endless))
	require.True(t, errors.As(err, &lenErr))
	require.Equal(t, IteratorLengthError{Expected: 3, Actual: 4}, *lenErr)
}

func writeBatch(t *testing.T) []byte {
	type Batch struct {
		Name  string
		Items SeqIter[Point]
	}
	pts := []Point{{X: 1}, {X: 2}, {X: 3}}
	return mustMarshal(t, Batch{Name: "b", Items: SeqOf(pts)})
}

func TestSeqIterField(t *testing.T) {
	type Batch struct {
		Name  string
		Items []Point
	}
	data := writeBatch(t)
	out, err := UnmarshalFull[Batch](data)
	require.NoError(t, err)
	require.Equal(t, Batch{Name: "b", Items: []Point{{X: 1}, {X: 2}, {X: 3}}}, out)
}

func TestRecursiveRoundTrip(t *testing.T) {
	in := Tree{Value: 1, Kids: []Tree{
		{Value: 2, Kids: []Tree{}},
		{Value: 3, Kids: []Tree{{Value: 4, Kids: []Tree{}}}},
	}}
	data := mustMarshal(t, in)
	full, err := UnmarshalFull[Tree](data)
	require.NoError(t, err)
	require.Equal(t, in, full)
	eps, err := DeserializeEps[Tree, Tree](nil, data)
	require.NoError(t, err)
	require.Equal(t, in, eps)
}

func TestZeroSizeValues(t *testing.T) {
	data := mustMarshal(t, []Empty{{}, {}, {}})
	require.Len(t, data, HeaderSize+8)
	out, err := UnmarshalFull[[]Empty](data)
	require.NoError(t, err)
	require.Len(t, out, 3)
	eps, err := DeserializeEps[[]Empty, []Empty](nil, data)
	require.NoError(t, err)
	require.Len(t, eps, 3)

	p, err := DeserializeEps[Empty, *Empty](nil, mustMarshal(t, Empty{}))
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestPhantomFields(t *testing.T) {
	in := shielded[Point]{X: Point{X: 1}}
	data := mustMarshal(t, in)
	out, err := DeserializeEps[shielded[Point], shielded[*Point]](nil, data)
	require.NoError(t, err)
	require.Equal(t, in.X, *out.X)
	full, err := UnmarshalFull[shielded[Point]](data)
	require.NoError(t, err)
	require.Equal(t, in, full)
}

func TestWriterDeterministic(t *testing.T) {
	a := Sample{Flag: 1, Value: 2, Tag: 3}
	clean := []Sample{a, a}
	dirty := []Sample{a, a}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&dirty[0])), 2*unsafe.Sizeof(a))
	for _, base := range []int{0, 24} {
		for i := 1; i < 8; i++ {
			raw[base+i] = 0xAA
		}
		for i := 18; i < 24; i++ {
			raw[base+i] = 0x55
		}
	}
	da := mustMarshal(t, clean)
	db := mustMarshal(t, dirty)
	require.Equal(t, da, db)

	body := db[HeaderSize+8:]
	for _, off := range []int{1, 7, 18, 23, 24 + 1, 24 + 23} {
		require.Zero(t, body[off], "offset %d", off)
	}

	d1 := mustMarshal(t, Doc{ID: 1, Points: []Point{{X: 1}}, Name: "x"})
	d2 := mustMarshal(t, Doc{ID: 1, Points: []Point{{X: 1}}, Name: "x"})
	require.Equal(t, d1, d2)
}

func TestAlignmentPadding(t *testing.T) {
	type Rec struct {
		A uint8
		P Point
	}
	data := mustMarshal(t, Rec{A: 9, P: Point{X: 1, Y: 2}})
	// Header, A, then padding to 8 before the Point.
	require.Len(t, data, 24+16)
	require.Equal(t, byte(9), data[HeaderSize])
	require.Equal(t, make([]byte, 7), data[HeaderSize+1:24])
}

func TestSchema(t *testing.T) {
	var buf bytes.Buffer
	n, schema, err := SerializeWithSchema(nil, &buf, Doc{ID: 5, Points: []Point{{X: 1}}, Name: "abc"})
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	fields := schema.Fields()
	names := make([]string, len(fields))
	for i, r := range fields {
		names[i] = r.Field
	}
	require.Equal(t, []string{"ROOT", "ROOT.ID", "ROOT.Points", "ROOT.Name"}, names)

	require.Equal(t, SchemaRow{Field: "ROOT.ID", Type: "uint32", Offset: 16, Size: 4, Align: 4}, fields[1])
	require.Equal(t, 8+4+16, fields[2].Size)
	require.Equal(t, 16+4+8+4+16, fields[3].Offset)

	var pad []SchemaRow
	for _, r := range schema.Rows {
		if r.Field == "PADDING" {
			pad = append(pad, r)
		}
	}
	require.Equal(t, []SchemaRow{{Field: "PADDING", Type: "u8", Offset: 28, Size: 4, Align: 1}}, pad)

	csv := schema.CSV()
	require.True(t, strings.HasPrefix(csv, "field,type,offset,size,align\n"))
	require.Contains(t, csv, "ROOT.ID,uint32,16,4,4\n")

	y, err := schema.YAML()
	require.NoError(t, err)
	var back Schema
	require.NoError(t, yaml.Unmarshal(y, &back))
	require.Equal(t, *schema, back)

	dump := schema.Debug(buf.Bytes())
	require.Contains(t, dump, "ROOT.Name")
	require.Contains(t, dump, "PADDING")
}
