package tds

// Header is the fixed 8-byte packet header. Length and SPID are big-endian
// on the wire; Length includes the header itself.
type Header struct {
	Type     PacketType `json:"type" yaml:"type"`
	Status   byte       `json:"status" yaml:"status"`
	Length   uint16     `json:"length" yaml:"length"`
	SPID     uint16     `json:"spid" yaml:"spid"`
	PacketID uint8      `json:"packet_id" yaml:"packet_id"`
	Window   byte       `json:"window" yaml:"window"`
}

// EOM reports whether this packet carries the end-of-message status bit.
func (h Header) EOM() bool {
	return h.Status&StatusEOM != 0
}

// Packet is the smallest framed unit on the wire: a header plus a payload
// slice of a logical message.
type Packet struct {
	Header  Header `json:"header" yaml:"header"`
	Payload []byte `json:"payload,omitempty" yaml:"payload,omitempty,flow"`
}
