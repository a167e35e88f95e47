package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// readBufSize matches the original 4096-byte read_some buffer; large
// enough that a TCP read batches many records per syscall while still
// occasionally splitting a record across two reads, which is exactly
// the reassembly case this decoder exists to handle.
const readBufSize = 4096

// Decoder reassembles a stream of packed wire records read from r.
// Partial tail bytes from one Read are preserved (left-shifted to the
// buffer's start) and completed by the next Read, rather than dropped.
//
// A Decoder is not safe for concurrent use; each TCP connection owns
// exactly one.
type Decoder struct {
	r   io.Reader
	buf [readBufSize]byte
	n   int // valid, unconsumed bytes at buf[:n]
}

// NewDecoder wraps r for record-at-a-time decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next blocks until a complete record is available, decodes it, and
// advances past it. It returns io.EOF when the client closes cleanly
// with no partial record pending, and ErrUnknownType (wrapped) for a
// record whose type byte isn't recognized — both cases mean the caller
// should close the connection.
func (d *Decoder) Next() (Message, error) {
	for {
		if d.n > 0 {
			need, err := recordSize(MessageType(d.buf[0]))
			if err != nil {
				return Message{}, err
			}
			if d.n >= need {
				msg, err := decodeRecord(MessageType(d.buf[0]), d.buf[:need])
				copy(d.buf[0:], d.buf[need:d.n])
				d.n -= need
				return msg, err
			}
		}

		if d.n == len(d.buf) {
			return Message{}, errors.New("wire: record does not fit read buffer")
		}

		read, err := d.r.Read(d.buf[d.n:])
		if read > 0 {
			d.n += read
			continue
		}
		if err != nil {
			return Message{}, err
		}
	}
}

func recordSize(typ MessageType) (int, error) {
	switch typ {
	case TypeNewOrder:
		return NewOrderSize, nil
	case TypeCancelOrder:
		return CancelOrderSize, nil
	default:
		return 0, errors.Wrapf(ErrUnknownType, "type byte %d", typ)
	}
}

func decodeRecord(typ MessageType, record []byte) (Message, error) {
	switch typ {
	case TypeNewOrder:
		m := &NewOrderMessage{
			Timestamp: binary.LittleEndian.Uint64(record[1:9]),
			OrderID:   binary.LittleEndian.Uint64(record[9:17]),
			Price:     int64(binary.LittleEndian.Uint32(record[17:21])),
			Quantity:  int64(binary.LittleEndian.Uint32(record[21:25])),
			Side:      record[25],
		}
		copy(m.Symbol[:], record[26:34])
		return Message{NewOrder: m}, nil
	case TypeCancelOrder:
		return Message{CancelOrder: &CancelOrderMessage{
			OrderID: binary.LittleEndian.Uint64(record[1:9]),
		}}, nil
	default:
		return Message{}, errors.Wrapf(ErrUnknownType, "type byte %d", typ)
	}
}

// Encode serializes a NewOrder record, little-endian, no padding. Used
// by tests to synthesize wire traffic.
func (m *NewOrderMessage) Encode() []byte {
	b := make([]byte, NewOrderSize)
	b[0] = byte(TypeNewOrder)
	binary.LittleEndian.PutUint64(b[1:9], m.Timestamp)
	binary.LittleEndian.PutUint64(b[9:17], m.OrderID)
	binary.LittleEndian.PutUint32(b[17:21], uint32(m.Price))
	binary.LittleEndian.PutUint32(b[21:25], uint32(m.Quantity))
	b[25] = m.Side
	copy(b[26:34], m.Symbol[:])
	return b
}

// Encode serializes a CancelOrder record, little-endian, no padding.
func (m *CancelOrderMessage) Encode() []byte {
	b := make([]byte, CancelOrderSize)
	b[0] = byte(TypeCancelOrder)
	binary.LittleEndian.PutUint64(b[1:9], m.OrderID)
	return b
}
