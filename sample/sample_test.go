package sample

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oteffahi/zenoh/keyexpr"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "put", KindPut.String())
	assert.Equal(t, "delete", KindDelete.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestSampleAccessors(t *testing.T) {
	key := keyexpr.MustNew("demo/temp")
	s := New(key, []byte("21.5"), KindPut)

	assert.Equal(t, key, s.KeyExpr())
	assert.Equal(t, []byte("21.5"), s.Payload())
	assert.Equal(t, KindPut, s.Kind())
	_, ok := s.Timestamp()
	assert.False(t, ok)
}

func TestWithTimestampIsACopy(t *testing.T) {
	orig := New(keyexpr.MustNew("demo/temp"), []byte("x"), KindPut)
	ts := NewTimestamp(100, uuid.New())

	stamped := orig.WithTimestamp(ts)

	got, ok := stamped.Timestamp()
	require.True(t, ok)
	assert.Equal(t, ts, got)

	_, ok = orig.Timestamp()
	assert.False(t, ok, "original must stay untouched")
}

func TestWithKeyIsACopy(t *testing.T) {
	orig := New(keyexpr.MustNew("demo/temp"), nil, KindDelete)
	moved := orig.WithKey(keyexpr.MustNew("demo/other"))

	assert.Equal(t, "demo/other", moved.KeyExpr().String())
	assert.Equal(t, "demo/temp", orig.KeyExpr().String())
	assert.Equal(t, KindDelete, moved.Kind())
}

func TestRawExtract(t *testing.T) {
	s := New(keyexpr.MustNew("demo/temp"), []byte("x"), KindPut)

	var e Extractor = Raw(s)
	got, err := e.Extract()
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSampleString(t *testing.T) {
	s := New(keyexpr.MustNew("demo/temp"), []byte("abc"), KindPut)
	assert.Equal(t, "put(demo/temp, 3B)", s.String())

	stamped := s.WithTimestamp(NewTimestamp(7, uuid.Nil))
	assert.Contains(t, stamped.String(), "@7/")
}
