// ABOUTME: Little-endian pose packet and acknowledgement codec
// ABOUTME: Version 1 and 2 layouts, validation and quaternion normalization
package headtracking

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/locusq/locusq-go/pkg/spatial"
)

// Wire constants.
const (
	PacketMagic uint32 = 0x4C515054 // "LQPT"
	AckMagic    uint32 = 0x4C514143 // "LQAC"

	// PacketSizeV1 is the full version 1 packet including the reserved tail.
	PacketSizeV1 = 40
	// PacketSizeV1Short is the version 1 packet without the reserved tail,
	// as sent by older trackers.
	PacketSizeV1Short = 36
	PacketSizeV2      = 52
	AckSize           = 48
	AckVersion        = 1

	// MaxPacketSize bounds the receive buffer of every transport.
	MaxPacketSize = 64
)

// Sensor flag bits of a version 2 packet.
const (
	SensorLocationMask uint32 = 0x3
	FlagRotationRate   uint32 = 1 << 2
)

// Decode errors.
var (
	ErrShortPacket          = errors.New("pose packet too short")
	ErrBadMagic             = errors.New("pose packet magic mismatch")
	ErrBadVersion           = errors.New("pose packet version unsupported")
	ErrNonFinite            = errors.New("pose packet carries non-finite values")
	ErrDegenerateQuaternion = errors.New("pose quaternion cannot be normalized")
)

// Snapshot is one decoded listener orientation.
type Snapshot struct {
	Orientation     spatial.Quat
	TimestampMs     uint64
	Seq             uint32
	AngularVelocity spatial.Vec3 // rad/s, listener frame
	Flags           uint32
}

// SensorLocation is the two-bit location code of the reporting sensor.
func (s Snapshot) SensorLocation() uint8 { return uint8(s.Flags & SensorLocationMask) }

// HasRotationRate reports whether AngularVelocity was measured.
func (s Snapshot) HasRotationRate() bool { return s.Flags&FlagRotationRate != 0 }

func readF32(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

func finite32(vs ...float32) bool {
	for _, v := range vs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Decode parses a version 1 or version 2 packet. The quaternion of a
// returned snapshot is unit length.
func Decode(b []byte) (Snapshot, error) {
	var s Snapshot
	if len(b) < PacketSizeV1Short {
		return s, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	le := binary.LittleEndian
	if m := le.Uint32(b[0:]); m != PacketMagic {
		return s, fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}
	version := le.Uint32(b[4:])
	switch version {
	case 1:
	case 2:
		if len(b) < PacketSizeV2 {
			return s, fmt.Errorf("%w: version 2 needs %d bytes, got %d", ErrShortPacket, PacketSizeV2, len(b))
		}
	default:
		return s, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	qx, qy, qz, qw := readF32(b[8:]), readF32(b[12:]), readF32(b[16:]), readF32(b[20:])
	if !finite32(qx, qy, qz, qw) {
		return s, ErrNonFinite
	}
	s.TimestampMs = le.Uint64(b[24:])
	s.Seq = le.Uint32(b[32:])

	if version == 2 {
		wx, wy, wz := readF32(b[36:]), readF32(b[40:]), readF32(b[44:])
		if !finite32(wx, wy, wz) {
			return s, ErrNonFinite
		}
		s.AngularVelocity = spatial.Vec3{X: float64(wx), Y: float64(wy), Z: float64(wz)}
		s.Flags = le.Uint32(b[48:])
	}

	q := spatial.Quat{X: float64(qx), Y: float64(qy), Z: float64(qz), W: float64(qw)}
	normSq := q.Dot(q)
	if normSq < 1e-12 || math.IsInf(normSq, 0) {
		return s, ErrDegenerateQuaternion
	}
	s.Orientation = q.Normalized()
	return s, nil
}

// AppendPacket appends s encoded as the given version to dst. Version 1
// drops angular velocity and flags.
func AppendPacket(dst []byte, s Snapshot, version uint32) []byte {
	size := PacketSizeV1
	if version == 2 {
		size = PacketSizeV2
	}
	off := len(dst)
	dst = append(dst, make([]byte, size)...)
	b := dst[off:]
	le := binary.LittleEndian
	le.PutUint32(b[0:], PacketMagic)
	le.PutUint32(b[4:], version)
	q := s.Orientation
	le.PutUint32(b[8:], math.Float32bits(float32(q.X)))
	le.PutUint32(b[12:], math.Float32bits(float32(q.Y)))
	le.PutUint32(b[16:], math.Float32bits(float32(q.Z)))
	le.PutUint32(b[20:], math.Float32bits(float32(q.W)))
	le.PutUint64(b[24:], s.TimestampMs)
	le.PutUint32(b[32:], s.Seq)
	if version == 2 {
		w := s.AngularVelocity
		le.PutUint32(b[36:], math.Float32bits(float32(w.X)))
		le.PutUint32(b[40:], math.Float32bits(float32(w.Y)))
		le.PutUint32(b[44:], math.Float32bits(float32(w.Z)))
		le.PutUint32(b[48:], s.Flags)
	}
	return dst
}

// PacketSize returns the encoded size of version, or 0 for an unknown
// version.
func PacketSize(version uint32) int {
	switch version {
	case 1:
		return PacketSizeV1
	case 2:
		return PacketSizeV2
	}
	return 0
}

// Ack flag bits.
const (
	AckPoseAvailable uint32 = 1 << 0
	AckPoseStale     uint32 = 1 << 1
)

// Ack is the periodic receipt the listener sends back to the tracker.
type Ack struct {
	Token           uint32
	Consumers       uint32
	LastSeq         uint32
	InvalidCount    uint32
	PoseTimestampMs uint64
	PoseAgeMs       float32
	Flags           uint32
	ListenPort      uint32
	Counter         uint32
}

// MarshalBinary encodes a into its fixed 48-byte layout.
func (a Ack) MarshalBinary() ([]byte, error) {
	b := make([]byte, AckSize)
	a.put(b)
	return b, nil
}

func (a Ack) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], AckMagic)
	le.PutUint32(b[4:], AckVersion)
	le.PutUint32(b[8:], a.Token)
	le.PutUint32(b[12:], a.Consumers)
	le.PutUint32(b[16:], a.LastSeq)
	le.PutUint32(b[20:], a.InvalidCount)
	le.PutUint64(b[24:], a.PoseTimestampMs)
	le.PutUint32(b[32:], math.Float32bits(a.PoseAgeMs))
	le.PutUint32(b[36:], a.Flags)
	le.PutUint32(b[40:], a.ListenPort)
	le.PutUint32(b[44:], a.Counter)
}

// UnmarshalBinary decodes an ack datagram.
func (a *Ack) UnmarshalBinary(b []byte) error {
	if len(b) < AckSize {
		return fmt.Errorf("%w: ack is %d bytes", ErrShortPacket, len(b))
	}
	le := binary.LittleEndian
	if m := le.Uint32(b[0:]); m != AckMagic {
		return fmt.Errorf("%w: %#08x", ErrBadMagic, m)
	}
	if v := le.Uint32(b[4:]); v != AckVersion {
		return fmt.Errorf("%w: ack version %d", ErrBadVersion, v)
	}
	*a = Ack{
		Token:           le.Uint32(b[8:]),
		Consumers:       le.Uint32(b[12:]),
		LastSeq:         le.Uint32(b[16:]),
		InvalidCount:    le.Uint32(b[20:]),
		PoseTimestampMs: le.Uint64(b[24:]),
		PoseAgeMs:       math.Float32frombits(le.Uint32(b[32:])),
		Flags:           le.Uint32(b[36:]),
		ListenPort:      le.Uint32(b[40:]),
		Counter:         le.Uint32(b[44:]),
	}
	return nil
}
