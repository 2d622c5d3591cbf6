package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopscan/internal/wire"
	"stopscan/pkg/contract"
)

func TestDecodeModes(t *testing.T) {
	iv := contract.NewInterval(1, 8)
	ctl := wire.EncodeInterval(iv)
	lens := []uint32{0, 1, 7, 2, 5, 8, 16}

	d, err := New(&Options{Mode: "per_number"})
	require.NoError(t, err)
	rep, err := d.Decode(context.Background(), "t", ctl, wire.EncodeIntervalEchoPlusLengths(iv, lens))
	require.NoError(t, err)
	assert.Equal(t, iv, rep.Interval)
	assert.Equal(t, 7, rep.Count)
	assert.Equal(t, uint32(16), rep.Max)
	assert.Equal(t, lens, rep.Lengths)

	d, _ = New(&Options{Mode: "finite_only"})
	rep, err = d.Decode(context.Background(), "t", ctl, wire.EncodeLengths(lens))
	require.NoError(t, err)
	assert.Equal(t, 7, rep.Count)
	assert.Equal(t, contract.ModeFiniteOnly, rep.Mode)

	d, _ = New(&Options{Mode: "maximum"})
	rep, err = d.Decode(context.Background(), "t", ctl, wire.EncodeMax(16))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Count, "maximum 模式不携带条数")
	assert.Equal(t, uint32(16), rep.Max)
}

func TestDecodeEchoMismatch(t *testing.T) {
	d, _ := New(nil)
	ctl := wire.EncodeInterval(contract.NewInterval(1, 3))
	blob := wire.EncodeIntervalEchoPlusLengths(contract.NewInterval(2, 3), []uint32{1})
	_, err := d.Decode(context.Background(), "t", ctl, blob)
	assert.ErrorIs(t, err, contract.ErrMalformedInput)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	d, _ := New(&Options{Mode: "finite_only"})
	ctl := wire.EncodeInterval(contract.NewInterval(1, 3))

	_, err := d.Decode(context.Background(), "t", ctl[:31], wire.EncodeLengths([]uint32{0}))
	assert.ErrorIs(t, err, contract.ErrMalformedInput)

	_, err = d.Decode(context.Background(), "t", ctl, []byte{1, 2, 3})
	assert.ErrorIs(t, err, contract.ErrMalformedInput)

	_, err = d.Decode(context.Background(), "t", ctl, wire.EncodeLengths([]uint32{0, 1, 7}))
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)

	_, err = New(&Options{Mode: "bogus"})
	assert.ErrorIs(t, err, contract.ErrMalformedInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Decode(ctx, "t", ctl, wire.EncodeLengths(nil))
	assert.ErrorIs(t, err, context.Canceled)
}
