package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// --- Fixtures ---

type entryKind int32

const (
	kindUnknown entryKind = iota
	kindBid
	kindWin
)

type testEntry struct {
	ID        string
	Secondary uuid.UUID
	Kind      entryKind
	Original  float64
	Remaining float64
	ETag      string // never serialized
}

var entrySchema = NewSchema(
	String(1, "id", func(e *testEntry) *string { return &e.ID }),
	GUID(2, "secondary", func(e *testEntry) *uuid.UUID { return &e.Secondary }),
	Enum(3, "entrytype", func(e *testEntry) *entryKind { return &e.Kind }),
	Float64(4, "original", func(e *testEntry) *float64 { return &e.Original }),
	Float64(5, "remaining", func(e *testEntry) *float64 { return &e.Remaining }),
)

type testItem struct {
	SKU string
	Qty int32
}

var itemSchema = NewSchema(
	String(1, "sku", func(i *testItem) *string { return &i.SKU }),
	Int32(2, "qty", func(i *testItem) *int32 { return &i.Qty }),
)

type testOrder struct {
	ID       string
	Items    []testItem
	Tags     []string
	Owner    *testEntry
	Placed   time.Time
	Priority float32
	Count    int64
	Rush     bool
	Blob     []byte
}

var orderSchema = NewSchema(
	String(1, "id", func(o *testOrder) *string { return &o.ID }),
	Array(2, "items", func(o *testOrder) *[]testItem { return &o.Items }),
	Strings(3, "tags", func(o *testOrder) *[]string { return &o.Tags }),
	Object(4, "owner", func(o *testOrder) **testEntry { return &o.Owner }),
	Time(5, "placed", func(o *testOrder) *time.Time { return &o.Placed }),
	Float32(6, "priority", func(o *testOrder) *float32 { return &o.Priority }),
	Int64(7, "count", func(o *testOrder) *int64 { return &o.Count }),
	Bool(8, "rush", func(o *testOrder) *bool { return &o.Rush }),
	Bytes(9, "blob", func(o *testOrder) *[]byte { return &o.Blob }),
)

// testOrderV1 is an older reader that only knows the id.
type testOrderV1 struct {
	ID string
}

var orderV1Schema = NewSchema(
	String(1, "id", func(o *testOrderV1) *string { return &o.ID }),
)

func newTestRegistry() *Registry {
	reg := NewRegistry()
	Register[testEntry](reg, entrySchema)
	Register[testItem](reg, itemSchema)
	Register[testOrder](reg, orderSchema)
	return reg
}

func sampleEntry() *testEntry {
	return &testEntry{
		ID:        "ledger-1",
		Secondary: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Kind:      kindWin,
		Original:  12.5,
		Remaining: 0.25,
	}
}

func sampleOrder() *testOrder {
	return &testOrder{
		ID:       "order-7",
		Items:    []testItem{{SKU: "a", Qty: 1}, {SKU: "b", Qty: -3}},
		Tags:     []string{"x", "y \"quoted\"\n"},
		Owner:    sampleEntry(),
		Placed:   time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC),
		Priority: 0.5,
		Count:    -1 << 40,
		Rush:     true,
		Blob:     []byte{0, 1, 2, 0xFF},
	}
}

var formats = []Format{FormatJSON, FormatBinary}

// --- Codec Test Suite ---

type CodecTestSuite struct {
	suite.Suite
	reg *Registry
}

func (s *CodecTestSuite) SetupTest() {
	s.reg = newTestRegistry()
}

func (s *CodecTestSuite) TestRegistry() {
	s.Assert().Equal(3, s.reg.Len())
	s.Assert().False(Register[testEntry](s.reg, entrySchema), "second registration is a no-op")
	s.Assert().Equal(3, s.reg.Len())
	s.Assert().True(IsRegistered[testOrder](s.reg))
	s.Assert().False(IsRegistered[testOrderV1](s.reg))

	_, err := SerializerFor[testOrderV1](s.reg)
	s.Assert().ErrorIs(err, ErrUnregisteredType)

	_, err = Unmarshal[testOrderV1](s.reg, []byte(`{"id":"x"}`), FormatJSON)
	s.Assert().ErrorIs(err, ErrUnregisteredType)
}

func (s *CodecTestSuite) TestRoundTrip() {
	for _, format := range formats {
		s.T().Run(format.String(), func(t *testing.T) {
			in := sampleOrder()
			data, err := Marshal(s.reg, in, format)
			require.NoError(t, err)

			out, err := Unmarshal[testOrder](s.reg, data, format)
			require.NoError(t, err)
			require.NotNil(t, out)
			assert.Equal(t, in, out)
		})
	}
}

func (s *CodecTestSuite) TestETagIsNotSerialized() {
	for _, format := range formats {
		in := sampleEntry()
		in.ETag = "v1"
		data, err := Marshal(s.reg, in, format)
		s.Require().NoError(err)
		s.Assert().NotContains(string(data), "v1")

		out, err := Unmarshal[testEntry](s.reg, data, format)
		s.Require().NoError(err)
		s.Assert().Empty(out.ETag)
	}
}

func (s *CodecTestSuite) TestJSONShape() {
	data, err := Marshal(s.reg, sampleEntry(), FormatJSON)
	s.Require().NoError(err)
	s.Assert().JSONEq(`{
		"id": "ledger-1",
		"secondary": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"entrytype": 2,
		"original": 12.5,
		"remaining": 0.25
	}`, string(data))
}

func (s *CodecTestSuite) TestJSONDecodeTolerance() {
	s.T().Run("AnyOrderAndUnknownKeys", func(t *testing.T) {
		doc := `{"remaining":1,"zzz":{"a":[1,2,{"b":null}]},"id":"x","extra":[true,"s"],"n":null}`
		e, err := Unmarshal[testEntry](s.reg, []byte(doc), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, &testEntry{ID: "x", Remaining: 1}, e)
	})

	s.T().Run("NumericKeys", func(t *testing.T) {
		e, err := Unmarshal[testEntry](s.reg, []byte(`{"1":"abc","4":2.5}`), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "abc", e.ID)
		assert.Equal(t, 2.5, e.Original)
	})

	s.T().Run("UnknownNumericKey", func(t *testing.T) {
		want, err := Unmarshal[testEntry](s.reg, []byte(`{"id":"x"}`), FormatJSON)
		require.NoError(t, err)
		got, err := Unmarshal[testEntry](s.reg, []byte(`{"id":"x","99":{"a":1}}`), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	s.T().Run("NonCanonicalNumericKey", func(t *testing.T) {
		e, err := Unmarshal[testEntry](s.reg, []byte(`{"id":"abc","01":"shadow","+1":"shadow"}`), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "abc", e.ID)
	})

	s.T().Run("NullsReadAsZero", func(t *testing.T) {
		o, err := Unmarshal[testOrder](s.reg, []byte(`{"id":null,"owner":null,"tags":null,"count":null}`), FormatJSON)
		require.NoError(t, err)
		require.NotNil(t, o, "an object with properties is present even if they are null")
		assert.Empty(t, o.ID)
		assert.Nil(t, o.Owner)
		assert.Nil(t, o.Tags)
	})

	s.T().Run("NonObjectArrayElementsSkipped", func(t *testing.T) {
		o, err := Unmarshal[testOrder](s.reg, []byte(`{"items":[1,{"sku":"a"},null,"x",{}]}`), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, []testItem{{SKU: "a"}, {}}, o.Items)
	})
}

func (s *CodecTestSuite) TestAbsent() {
	cases := map[string]struct {
		data   []byte
		format Format
	}{
		"EmptyJSONObject": {[]byte(`{}`), FormatJSON},
		"WhitespaceJSON":  {[]byte(" \n"), FormatJSON},
		"EmptyBinary":     {nil, FormatBinary},
	}
	for name, tc := range cases {
		s.T().Run(name, func(t *testing.T) {
			e, err := Unmarshal[testEntry](s.reg, tc.data, tc.format)
			require.NoError(t, err)
			assert.Nil(t, e)
		})
	}

	s.T().Run("UnknownPropertiesAreObserved", func(t *testing.T) {
		e, err := Unmarshal[testEntry](s.reg, []byte(`{"other":1}`), FormatJSON)
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	s.T().Run("NilEncodesNothing", func(t *testing.T) {
		for _, format := range formats {
			data, err := Marshal[testEntry](s.reg, nil, format)
			require.NoError(t, err)
			assert.Empty(t, data)
		}
	})
}

func (s *CodecTestSuite) TestEmptyVersusAbsentArrays() {
	for _, format := range formats {
		s.T().Run(format.String(), func(t *testing.T) {
			in := &testOrder{ID: "o", Items: []testItem{}, Tags: nil}
			data, err := Marshal(s.reg, in, format)
			require.NoError(t, err)

			out, err := Unmarshal[testOrder](s.reg, data, format)
			require.NoError(t, err)
			assert.NotNil(t, out.Items)
			assert.Empty(t, out.Items)
			assert.Nil(t, out.Tags)
		})
	}
}

func (s *CodecTestSuite) TestTypeMismatch() {
	s.T().Run("JSONScalar", func(t *testing.T) {
		_, err := Unmarshal[testEntry](s.reg, []byte(`{"id":5}`), FormatJSON)
		require.ErrorIs(t, err, ErrTypeMismatch)

		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, Prop(1, "id"), de.Property)
	})

	s.T().Run("NestedPath", func(t *testing.T) {
		_, err := Unmarshal[testOrder](s.reg, []byte(`{"owner":{"original":"high"}}`), FormatJSON)
		require.ErrorIs(t, err, ErrTypeMismatch)

		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []PropertyID{Prop(4, "owner"), Prop(4, "original")}, de.Path())
	})

	s.T().Run("Int32Overflow", func(t *testing.T) {
		_, err := Unmarshal[testItem](s.reg, []byte(`{"qty":4294967296}`), FormatJSON)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	s.T().Run("NonObjectRoot", func(t *testing.T) {
		for _, doc := range []string{`[1,2]`, `"text"`, `42`} {
			_, err := Unmarshal[testEntry](s.reg, []byte(doc), FormatJSON)
			assert.ErrorIs(t, err, ErrTypeMismatch, doc)
		}
	})

	s.T().Run("BoolFromText", func(t *testing.T) {
		_, err := Unmarshal[testOrder](s.reg, []byte(`{"rush":"yes"}`), FormatJSON)
		require.ErrorIs(t, err, ErrTypeMismatch)

		var buf bytes.Buffer
		w, _ := NewWriter(&buf, FormatBinary, s.reg)
		require.NoError(t, w.StartObject())
		require.NoError(t, w.WriteProperty(Prop(8, "rush")))
		require.NoError(t, w.WriteString("yes"))
		require.NoError(t, w.EndObject())
		require.NoError(t, w.Flush())

		_, err = Unmarshal[testOrder](s.reg, buf.Bytes(), FormatBinary)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	s.T().Run("BinaryWireType", func(t *testing.T) {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf, FormatBinary, s.reg)
		require.NoError(t, w.StartObject())
		require.NoError(t, w.WriteProperty(Prop(1, "id")))
		require.NoError(t, w.WriteDouble(1))
		require.NoError(t, w.EndObject())
		require.NoError(t, w.Flush())

		_, err := Unmarshal[testEntry](s.reg, buf.Bytes(), FormatBinary)
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})
}

func (s *CodecTestSuite) TestCorruptedStream() {
	s.T().Run("TruncatedJSON", func(t *testing.T) {
		for _, doc := range []string{`{"id":"x"`, `{"id":`, `{"items":[{"sku":"a"}`} {
			_, err := Unmarshal[testOrder](s.reg, []byte(doc), FormatJSON)
			assert.ErrorIs(t, err, ErrCorruptedStream, doc)
		}
	})

	s.T().Run("MalformedJSON", func(t *testing.T) {
		_, err := Unmarshal[testEntry](s.reg, []byte(`{"id" "x"}`), FormatJSON)
		assert.ErrorIs(t, err, ErrCorruptedStream)
	})

	s.T().Run("TruncatedBinary", func(t *testing.T) {
		data, err := Marshal(s.reg, sampleOrder(), FormatBinary)
		require.NoError(t, err)
		for _, cut := range []int{1, 3, 5} {
			_, err := Unmarshal[testOrder](s.reg, data[:len(data)-cut], FormatBinary)
			assert.ErrorIs(t, err, ErrCorruptedStream, "cut %d", cut)
		}
	})

	s.T().Run("BadBinaryTag", func(t *testing.T) {
		_, err := Unmarshal[testEntry](s.reg, []byte{0x0F}, FormatBinary) // field 1, wire type 7
		assert.ErrorIs(t, err, ErrCorruptedStream)
	})

	s.T().Run("TrailingData", func(t *testing.T) {
		for _, doc := range []string{`{"id":"abc"} {"id":"evil"}`, `{"id":"abc"} garbage`, `{"id":"abc"}]`, `{} 1`} {
			_, err := Unmarshal[testEntry](s.reg, []byte(doc), FormatJSON)
			assert.ErrorIs(t, err, ErrCorruptedStream, doc)
		}
		e, err := Unmarshal[testEntry](s.reg, []byte("{\"id\":\"abc\"}\n\t "), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "abc", e.ID)
	})

	s.T().Run("LengthPrefixBeyondInput", func(t *testing.T) {
		// field 1 claims a string of 60 MiB; the body ends right after the prefix.
		data := []byte{0x0A, 0x80, 0x80, 0x80, 0x1E}
		var before, after runtime.MemStats
		runtime.ReadMemStats(&before)
		_, err := Unmarshal[testEntry](s.reg, data, FormatBinary)
		runtime.ReadMemStats(&after)
		assert.ErrorIs(t, err, ErrCorruptedStream)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))

		runtime.ReadMemStats(&before)
		_, err = Decode[testEntry](s.reg, io.MultiReader(bytes.NewReader(data)), FormatBinary)
		runtime.ReadMemStats(&after)
		assert.ErrorIs(t, err, ErrCorruptedStream)
		assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(1<<20))
	})

	s.T().Run("LengthBeyondFrame", func(t *testing.T) {
		// owner object claims 2 bytes, then its string claims 100.
		data := []byte{0x23, 0x02, 0x0A, 0x64}
		_, err := Unmarshal[testOrder](s.reg, data, FormatBinary)
		assert.ErrorIs(t, err, ErrCorruptedStream)
	})
}

func (s *CodecTestSuite) TestBinaryForwardCompatibility() {
	s.T().Run("UnknownFieldsSkipped", func(t *testing.T) {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf, FormatBinary, s.reg)
		require.NoError(t, w.StartObject())
		require.NoError(t, w.WriteProperty(Prop(99, "future")))
		require.NoError(t, w.WriteString("ignored"))
		require.NoError(t, w.WriteProperty(Prop(1, "id")))
		require.NoError(t, w.WriteString("kept"))
		require.NoError(t, w.WriteProperty(Prop(98, "nested")))
		require.NoError(t, w.StartObject())
		require.NoError(t, w.WriteProperty(Prop(1, "a")))
		require.NoError(t, w.WriteLong(7))
		require.NoError(t, w.EndObject())
		require.NoError(t, w.WriteProperty(Prop(97, "list")))
		require.NoError(t, w.StartArray())
		require.NoError(t, w.WriteFloat(1.5))
		require.NoError(t, w.WriteDouble(2.5))
		require.NoError(t, w.EndArray())
		require.NoError(t, w.WriteProperty(Prop(5, "remaining")))
		require.NoError(t, w.WriteDouble(3))
		require.NoError(t, w.EndObject())
		require.NoError(t, w.Flush())

		e, err := Unmarshal[testEntry](s.reg, buf.Bytes(), FormatBinary)
		require.NoError(t, err)
		assert.Equal(t, &testEntry{ID: "kept", Remaining: 3}, e)
	})

	s.T().Run("OlderReader", func(t *testing.T) {
		reg := NewRegistry()
		Register[testOrderV1](reg, orderV1Schema)
		for _, format := range formats {
			data, err := Marshal(s.reg, sampleOrder(), format)
			require.NoError(t, err)
			old, err := Unmarshal[testOrderV1](reg, data, format)
			require.NoError(t, err)
			assert.Equal(t, "order-7", old.ID)
		}
	})

	s.T().Run("NewerReader", func(t *testing.T) {
		reg := NewRegistry()
		Register[testOrderV1](reg, orderV1Schema)
		data, err := Marshal(reg, &testOrderV1{ID: "legacy"}, FormatBinary)
		require.NoError(t, err)
		o, err := Unmarshal[testOrder](s.reg, data, FormatBinary)
		require.NoError(t, err)
		assert.Equal(t, &testOrder{ID: "legacy"}, o)
	})
}

func (s *CodecTestSuite) TestDynamic() {
	r, err := NewReader(strings.NewReader(`{"a":1,"b":[1.5,"x",true],"c":{"d":null}}`), FormatJSON, s.reg)
	s.Require().NoError(err)
	ok, err := r.Advance()
	s.Require().NoError(err)
	s.Require().True(ok)

	m, err := r.ReadDynamic()
	s.Require().NoError(err)
	s.Assert().Equal(map[string]any{
		"a": int64(1),
		"b": []any{1.5, "x", true},
		"c": map[string]any{"d": nil},
	}, m)

	br, _ := NewReader(bytes.NewReader([]byte{0x0A, 0x00}), FormatBinary, s.reg)
	_, err = br.ReadDynamic()
	s.Assert().ErrorIs(err, ErrUnsupportedOperation)
}

func (s *CodecTestSuite) TestWriterContracts() {
	s.T().Run("UnbalancedPanics", func(t *testing.T) {
		for _, format := range formats {
			w, _ := NewWriter(io.Discard, format, s.reg)
			assert.Panics(t, func() { _ = w.EndObject() }, format.String())
			w, _ = NewWriter(io.Discard, format, s.reg)
			assert.Panics(t, func() { _ = w.EndArray() }, format.String())
		}
	})

	s.T().Run("BinaryNeedsNumericID", func(t *testing.T) {
		w, _ := NewWriter(io.Discard, FormatBinary, s.reg)
		require.NoError(t, w.StartObject())
		assert.ErrorIs(t, w.WriteProperty(PropertyID{Name: "only-name"}), ErrUnsupportedOperation)
	})

	s.T().Run("JSONUsesNumericKeyWithoutName", func(t *testing.T) {
		var buf bytes.Buffer
		w, _ := NewWriter(&buf, FormatJSON, s.reg)
		require.NoError(t, w.StartObject())
		require.NoError(t, w.WriteProperty(PropertyID{ID: 1}))
		require.NoError(t, w.WriteString("abc"))
		require.NoError(t, w.EndObject())
		require.NoError(t, w.Flush())
		assert.Equal(t, `{"1":"abc"}`, buf.String())

		e, err := Unmarshal[testEntry](s.reg, buf.Bytes(), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "abc", e.ID)
	})

	s.T().Run("JSONRejectsNaN", func(t *testing.T) {
		_, err := Marshal(s.reg, &testEntry{Original: math.NaN()}, FormatJSON)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	})

	s.T().Run("JSONEscaping", func(t *testing.T) {
		data, err := Marshal(s.reg, &testItem{SKU: "a\"b\\c\x01 \u00e9\xff"}, FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, "{\"sku\":\"a\\\"b\\\\c\\u0001 \u00e9\\ufffd\",\"qty\":0}", string(data))
	})
}

// closeRecorder tracks whether Encode closed it.
type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func (s *CodecTestSuite) TestEncodeLeaveOpen() {
	sink := &closeRecorder{}
	s.Require().NoError(Encode(s.reg, sink, sampleEntry(), FormatJSON, true))
	s.Assert().False(sink.closed)
	s.Assert().NotZero(sink.Len())

	sink = &closeRecorder{}
	s.Require().NoError(Encode(s.reg, sink, sampleEntry(), FormatBinary, false))
	s.Assert().True(sink.closed)
}

func (s *CodecTestSuite) TestMarshalTo() {
	want, err := Marshal(s.reg, sampleOrder(), FormatBinary)
	s.Require().NoError(err)

	buf := make([]byte, len(want)+8)
	n, err := MarshalTo(s.reg, sampleOrder(), FormatBinary, buf)
	s.Require().NoError(err)
	s.Assert().Equal(want, buf[:n])

	_, err = MarshalTo(s.reg, sampleOrder(), FormatBinary, make([]byte, len(want)-1))
	s.Assert().ErrorIs(err, io.ErrShortWrite)
}

func (s *CodecTestSuite) TestSizeLimit() {
	data, err := Marshal(s.reg, sampleOrder(), FormatJSON)
	s.Require().NoError(err)

	_, err = Decode[testOrder](s.reg, LimitReader(bytes.NewReader(data), int64(len(data))), FormatJSON)
	s.Assert().NoError(err)

	_, err = Decode[testOrder](s.reg, LimitReader(bytes.NewReader(data), 16), FormatJSON)
	s.Assert().ErrorIs(err, ErrTooLarge)
}

func (s *CodecTestSuite) TestConcurrentDecodes() {
	payloads := make([][]byte, 32)
	for i := range payloads {
		data, err := Marshal(s.reg, &testItem{SKU: fmt.Sprintf("sku-%d", i), Qty: int32(i)}, formats[i%2])
		s.Require().NoError(err)
		payloads[i] = data
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(payloads))
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item, err := Unmarshal[testItem](s.reg, payloads[i], formats[i%2])
			if err == nil && (item.SKU != fmt.Sprintf("sku-%d", i) || item.Qty != int32(i)) {
				err = errors.New("cross-talk between decodes")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Assert().NoError(err)
	}
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}

// --- Standalone Tests ---

func TestFormat(t *testing.T) {
	f, err := ParseFormat("binary")
	require.NoError(t, err)
	assert.Equal(t, FormatBinary, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	assert.Equal(t, FormatBinary, FormatForContentType(ContentTypeBinary+"; v=1"))
	assert.Equal(t, FormatJSON, FormatForContentType("application/json; charset=utf-8"))
	assert.Equal(t, FormatJSON, FormatForContentType(""))
}

func TestPropertyID(t *testing.T) {
	assert.True(t, PropertyID{}.IsZero())
	assert.Equal(t, "7", PropertyID{ID: 7}.Key())
	assert.Equal(t, "id(1)", Prop(1, "id").String())
}

func TestNewSchemaRejectsDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		NewSchema(
			String(1, "a", func(i *testItem) *string { return &i.SKU }),
			Int32(1, "b", func(i *testItem) *int32 { return &i.Qty }),
		)
	})
}

func TestSchemaLookup(t *testing.T) {
	assert.Equal(t, Prop(1, "id"), entrySchema.lookup(PropertyID{Name: "id"}).ID)
	assert.Equal(t, Prop(3, "entrytype"), entrySchema.lookup(PropertyID{ID: 3}).ID)
	assert.Equal(t, Prop(3, "entrytype"), entrySchema.lookup(PropertyID{Name: "3"}).ID)
	assert.Nil(t, entrySchema.lookup(PropertyID{Name: "nope"}))
	assert.Nil(t, entrySchema.lookup(PropertyID{Name: "03"}))
	assert.Nil(t, entrySchema.lookup(PropertyID{ID: 42}))
}
