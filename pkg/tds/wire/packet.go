package wire

import (
	"encoding/binary"
	"io"

	models "github.com/tabwire/tds/pkg/models/tds"
)

// EncodePackets splits payload into framed packets bounded by packetSize.
// Packet numbers start at 1 and wrap at 255; only the final packet carries
// the end-of-message status bit. An empty payload still produces one packet
// so header-only messages (attention) stay expressible.
func EncodePackets(t models.PacketType, payload []byte, packetSize int, spid uint16) ([][]byte, error) {
	if packetSize <= models.HeaderSize {
		return nil, models.NewProtocolErrorf("packet size %d does not fit the %d-byte header", packetSize, models.HeaderSize)
	}
	chunk := packetSize - models.HeaderSize

	var packets [][]byte
	id := uint8(1)
	rest := payload
	for {
		part := rest
		if len(part) > chunk {
			part = part[:chunk]
		}
		rest = rest[len(part):]

		status := byte(0)
		if len(rest) == 0 {
			status = models.StatusEOM
		}

		pkt := make([]byte, models.HeaderSize+len(part))
		pkt[0] = byte(t)
		pkt[1] = status
		binary.BigEndian.PutUint16(pkt[2:], uint16(models.HeaderSize+len(part)))
		binary.BigEndian.PutUint16(pkt[4:], spid)
		pkt[6] = id
		pkt[7] = 0
		copy(pkt[models.HeaderSize:], part)
		packets = append(packets, pkt)

		if len(rest) == 0 {
			return packets, nil
		}
		id++ // wraps naturally at 255 -> 0
	}
}

// Decoder reassembles a raw byte stream into packets. TCP makes no chunking
// guarantee, so a packet may arrive split across any number of Feed calls
// and one Feed may carry several packets.
type Decoder struct {
	buf    []byte
	closed bool
}

// Feed appends raw transport bytes to the decoder.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Close marks the producer side as finished. A later Next drains complete
// packets and then reports either io.EOF or, if bytes of an unfinished
// packet remain, a ProtocolError.
func (d *Decoder) Close() {
	d.closed = true
}

// Next returns the next complete packet. It returns (nil, nil) when more
// input is needed and (nil, io.EOF) when the stream ended cleanly.
func (d *Decoder) Next() (*models.Packet, error) {
	if len(d.buf) < models.HeaderSize {
		return nil, d.starved()
	}
	length := binary.BigEndian.Uint16(d.buf[2:4])
	if int(length) < models.HeaderSize {
		return nil, models.NewProtocolErrorf("packet declares length %d, below the %d-byte header", length, models.HeaderSize)
	}
	if int(length) > models.MaxPacketSize {
		return nil, models.NewProtocolErrorf("packet declares length %d, above the %d-byte maximum", length, models.MaxPacketSize)
	}
	if len(d.buf) < int(length) {
		return nil, d.starved()
	}

	pkt := &models.Packet{
		Header: models.Header{
			Type:     models.PacketType(d.buf[0]),
			Status:   d.buf[1],
			Length:   length,
			SPID:     binary.BigEndian.Uint16(d.buf[4:6]),
			PacketID: d.buf[6],
			Window:   d.buf[7],
		},
	}
	if int(length) > models.HeaderSize {
		pkt.Payload = make([]byte, int(length)-models.HeaderSize)
		copy(pkt.Payload, d.buf[models.HeaderSize:length])
	}
	d.buf = d.buf[length:]
	return pkt, nil
}

func (d *Decoder) starved() error {
	if !d.closed {
		return nil
	}
	if len(d.buf) > 0 {
		return models.NewProtocolErrorf("stream ended with %d bytes of an unfinished packet", len(d.buf))
	}
	return io.EOF
}
