package mav

// Codec translates between typed messages and MAVLink v2 wire bytes.
// Implementations wrap an existing serializer; this repository never touches
// the binary layout itself. A codec instance belongs to a single transport:
// Decode keeps partial-frame reassembly state between calls so it works for
// both datagram and byte-stream links.
type Codec interface {
	// Encode serializes one outbound message into a complete wire frame.
	Encode(msg Message) ([]byte, error)

	// Decode consumes a chunk of received bytes and returns every message
	// completed by it, in arrival order. Bytes forming an incomplete frame
	// are buffered internally until the next call.
	Decode(chunk []byte) ([]Message, error)
}
