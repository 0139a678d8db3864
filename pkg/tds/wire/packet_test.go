package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/tabwire/tds/pkg/models/tds"
)

func TestEncodePacketsSingle(t *testing.T) {
	payload := []byte("select 1")
	packets, err := EncodePackets(models.PacketSQLBatch, payload, models.DefaultPacketSize, 7)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	pkt := packets[0]
	assert.Equal(t, byte(models.PacketSQLBatch), pkt[0])
	assert.Equal(t, models.StatusEOM, pkt[1])
	assert.Equal(t, uint16(models.HeaderSize+len(payload)), binary.BigEndian.Uint16(pkt[2:4]))
	assert.Equal(t, uint16(7), binary.BigEndian.Uint16(pkt[4:6]))
	assert.Equal(t, byte(1), pkt[6])
	assert.Equal(t, payload, pkt[models.HeaderSize:])
}

func TestEncodePacketsSplit(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 100)
	const packetSize = 40 // 32 payload bytes per packet

	packets, err := EncodePackets(models.PacketLogin7, payload, packetSize, 0)
	require.NoError(t, err)
	require.Len(t, packets, 4)

	var reassembled []byte
	for i, pkt := range packets {
		assert.LessOrEqual(t, len(pkt), packetSize)
		assert.Equal(t, byte(i+1), pkt[6], "packet numbers start at 1")
		wantStatus := byte(0)
		if i == len(packets)-1 {
			wantStatus = models.StatusEOM
		}
		assert.Equal(t, wantStatus, pkt[1], "only the final packet carries EOM")
		assert.Equal(t, uint16(len(pkt)), binary.BigEndian.Uint16(pkt[2:4]))
		reassembled = append(reassembled, pkt[models.HeaderSize:]...)
	}
	assert.Equal(t, payload, reassembled)
}

func TestEncodePacketsEmptyPayload(t *testing.T) {
	packets, err := EncodePackets(models.PacketAttention, nil, models.DefaultPacketSize, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Len(t, packets[0], models.HeaderSize)
	assert.Equal(t, models.StatusEOM, packets[0][1])
}

func TestEncodePacketsSizeTooSmall(t *testing.T) {
	_, err := EncodePackets(models.PacketSQLBatch, []byte("x"), models.HeaderSize, 0)
	require.Error(t, err)
	assert.True(t, models.IsProtocolError(err))
}

func TestDecoderReassemblesSplitFeeds(t *testing.T) {
	packets, err := EncodePackets(models.PacketReply, []byte("fragmented arrival"), models.DefaultPacketSize, 3)
	require.NoError(t, err)
	raw := packets[0]

	var d Decoder
	for _, by := range raw[:len(raw)-1] {
		d.Feed([]byte{by})
		pkt, err := d.Next()
		require.NoError(t, err)
		assert.Nil(t, pkt, "no packet until every byte arrived")
	}
	d.Feed(raw[len(raw)-1:])

	pkt, err := d.Next()
	require.NoError(t, err)
	require.NotNil(t, pkt)
	assert.Equal(t, models.PacketReply, pkt.Header.Type)
	assert.Equal(t, uint16(3), pkt.Header.SPID)
	assert.True(t, pkt.Header.EOM())
	assert.Equal(t, []byte("fragmented arrival"), pkt.Payload)
}

func TestDecoderSeveralPacketsInOneFeed(t *testing.T) {
	packets, err := EncodePackets(models.PacketReply, bytes.Repeat([]byte{1}, 50), 28, 0)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1)

	var d Decoder
	d.Feed(bytes.Join(packets, nil))
	for range packets {
		pkt, err := d.Next()
		require.NoError(t, err)
		require.NotNil(t, pkt)
	}
	pkt, err := d.Next()
	require.NoError(t, err)
	assert.Nil(t, pkt)
}

func TestDecoderRejectsBadLengths(t *testing.T) {
	tests := []struct {
		name   string
		length uint16
	}{
		{name: "below header size", length: models.HeaderSize - 1},
		{name: "above maximum", length: models.MaxPacketSize + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]byte, models.HeaderSize)
			raw[0] = byte(models.PacketReply)
			binary.BigEndian.PutUint16(raw[2:], tt.length)

			var d Decoder
			d.Feed(raw)
			_, err := d.Next()
			require.Error(t, err)
			assert.True(t, models.IsProtocolError(err))
		})
	}
}

func TestDecoderCloseMidPacket(t *testing.T) {
	packets, err := EncodePackets(models.PacketReply, []byte("truncated"), models.DefaultPacketSize, 0)
	require.NoError(t, err)

	var d Decoder
	d.Feed(packets[0][:models.HeaderSize+3])
	d.Close()
	_, err = d.Next()
	require.Error(t, err)
	assert.True(t, models.IsProtocolError(err))
}

func TestDecoderCleanClose(t *testing.T) {
	var d Decoder
	d.Close()
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}
