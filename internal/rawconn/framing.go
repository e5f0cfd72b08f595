package rawconn

import (
	"encoding/binary"
	"fmt"
)

const (
	recordHeaderLen = 5
	// RFC 8446 allows 2^14+256 for TLS 1.3 ciphertext and TLS 1.2 allows up to
	// 2^14+2048; the looser bound covers both.
	maxRecordLen = 1<<14 + 2048

	recordTypeChangeCipherSpec = 20
	recordTypeAlert            = 21
	recordTypeApplicationData  = 23
	recordTypeHeartbeat        = 24

	// AEAD expansion per record besides the header: tag plus inner content
	// type for TLS 1.3, explicit nonce plus tag for TLS 1.2 AES-GCM.
	expansionTLS13 = 17
	expansionTLS12 = 24
)

// framer follows TLS record boundaries in a ciphertext stream without
// decrypting it. It only looks at the 5-byte record headers.
type framer struct {
	hdr       [recordHeaderLen]byte
	hdrN      int
	remaining int
	expansion int

	offset   int64
	records  int64
	overhead int64

	inAlert bool
	// sawAlert is set once a cleartext alert record has been consumed
	// completely; nothing after it belongs to the response.
	sawAlert bool
}

func newFramer(expansion int) framer {
	return framer{expansion: expansion}
}

// startResponse zeroes the counters after the handshake while keeping the
// position inside the current record.
func (f *framer) startResponse(expansion int) {
	f.expansion = expansion
	f.records = 0
	f.overhead = 0
	f.inAlert = false
	f.sawAlert = false
}

func (f *framer) feed(p []byte) error {
	for len(p) > 0 {
		if f.remaining > 0 {
			n := len(p)
			if n > f.remaining {
				n = f.remaining
			}
			f.remaining -= n
			f.offset += int64(n)
			p = p[n:]
			if f.remaining == 0 && f.inAlert {
				f.sawAlert = true
			}
			continue
		}

		n := copy(f.hdr[f.hdrN:], p)
		f.hdrN += n
		f.offset += int64(n)
		p = p[n:]
		if f.hdrN < recordHeaderLen {
			return nil
		}
		f.hdrN = 0

		typ := f.hdr[0]
		if typ < recordTypeChangeCipherSpec || typ > recordTypeHeartbeat {
			return &ProtocolError{Offset: f.offset - recordHeaderLen, Reason: fmt.Sprintf("record type %d", typ)}
		}
		if f.hdr[1] != 3 {
			return &ProtocolError{Offset: f.offset - recordHeaderLen, Reason: fmt.Sprintf("record version %d.%d", f.hdr[1], f.hdr[2])}
		}
		length := int(binary.BigEndian.Uint16(f.hdr[3:5]))
		if length > maxRecordLen {
			return &ProtocolError{Offset: f.offset - recordHeaderLen, Reason: fmt.Sprintf("record length %d", length)}
		}

		f.records++
		expansion := f.expansion
		if expansion > length {
			expansion = length
		}
		f.overhead += int64(recordHeaderLen + expansion)
		f.inAlert = typ == recordTypeAlert
		f.remaining = length
		if length == 0 && f.inAlert {
			f.sawAlert = true
		}
	}
	return nil
}
