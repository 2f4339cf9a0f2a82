package crypto

import "fmt"

// Binary metadata header carried in front of GCM ciphertexts. The header is
// required to decrypt and is never itself encrypted.
//
//	magic(2) | version(1) | alg(1) | keyTagLen(1) | keyTag | nonce(12)
//
// keyTag is algorithm-specific: the PBKDF2 salt for the password provider,
// the key fingerprint for the key-manager provider.
const (
	headerMagic   = "AC"
	headerVersion = 0x01

	algByteNone        = 0x00
	algBytePasswordGCM = 0x02
	algByteManagedGCM  = 0x03

	gcmNonceSize = 12
	gcmTagSize   = 16

	minHeaderSize = 5
)

type header struct {
	algorithm byte
	keyTag    []byte
	nonce     []byte
}

func (h header) size() int {
	return minHeaderSize + len(h.keyTag) + gcmNonceSize
}

func (h header) marshal() ([]byte, error) {
	if len(h.keyTag) > 255 {
		return nil, fmt.Errorf("crypto: key tag too long")
	}
	if len(h.nonce) != gcmNonceSize {
		return nil, fmt.Errorf("crypto: bad nonce length")
	}
	out := make([]byte, 0, h.size())
	out = append(out, headerMagic...)
	out = append(out, headerVersion, h.algorithm, byte(len(h.keyTag)))
	out = append(out, h.keyTag...)
	out = append(out, h.nonce...)
	return out, nil
}

// parseHeader returns the header and the remaining body. All returned slices
// are defensive copies except the body, which aliases data.
func parseHeader(data []byte, wantAlg byte) (header, []byte, error) {
	if len(data) < minHeaderSize || string(data[:2]) != headerMagic {
		return header{}, nil, fmt.Errorf("crypto: invalid header")
	}
	if data[2] != headerVersion {
		return header{}, nil, fmt.Errorf("crypto: unsupported format version %d", data[2])
	}
	if data[3] != wantAlg {
		return header{}, nil, fmt.Errorf("crypto: unexpected algorithm %d", data[3])
	}
	tagLen := int(data[4])
	off := minHeaderSize
	if len(data) < off+tagLen+gcmNonceSize {
		return header{}, nil, fmt.Errorf("crypto: truncated header")
	}
	h := header{algorithm: data[3]}
	h.keyTag = append([]byte(nil), data[off:off+tagLen]...)
	off += tagLen
	h.nonce = append([]byte(nil), data[off:off+gcmNonceSize]...)
	off += gcmNonceSize
	return h, data[off:], nil
}
