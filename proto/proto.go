// Package proto defines the wire protocol shared by the worldsync server and
// its clients: message tags, fixed-size payload codecs and the frame format.
//
// Every payload is a fixed little-endian record and every decoder validates
// the exact length, so a malformed message is rejected before any state is
// touched.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Tag identifies the kind of payload a frame carries.
type Tag uint16

const (
	TagSpawn Tag = iota + 1
	TagMovement
	TagPlaceBlock
	TagDestroyBlock
	TagDespawn
)

func (t Tag) String() string {
	switch t {
	case TagSpawn:
		return "spawn"
	case TagMovement:
		return "movement"
	case TagPlaceBlock:
		return "place_block"
	case TagDestroyBlock:
		return "destroy_block"
	case TagDespawn:
		return "despawn"
	default:
		return fmt.Sprintf("tag(%d)", uint16(t))
	}
}

// Payload sizes in bytes.
const (
	MovementSize = 24 // position + rotation
	StateSize    = 28 // position + rotation + owner id
	BlockSize    = 12 // x, y, z
	DespawnSize  = 4  // owner id
)

var (
	// ErrBadLength reports a payload whose size does not match its tag.
	ErrBadLength = errors.New("proto: bad payload length")
	// ErrNotFinite reports a block coordinate carrying NaN or an infinity.
	ErrNotFinite = errors.New("proto: non-finite coordinate")
)

// PlayerState is the full transform of one connected player. OwnerID is the
// global identifier the server allocated to the owning connection and never
// changes after spawn.
type PlayerState struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	OwnerID  uint32
}

// GridCoordinate addresses one voxel cell. Components are floats for wire
// compatibility but are always integral once snapped, so a snapped value is
// usable directly as a set key.
type GridCoordinate struct {
	X, Y, Z float32
}

// Snap normalizes c to the nearest cell on each axis, rounding halves away
// from zero. Negative zero collapses to zero so equal cells encode to equal
// bytes.
func (c GridCoordinate) Snap() GridCoordinate {
	return GridCoordinate{snapAxis(c.X), snapAxis(c.Y), snapAxis(c.Z)}
}

func snapAxis(v float32) float32 {
	r := float32(math.Round(float64(v)))
	if r == 0 {
		return 0
	}
	return r
}

// Vec3 returns the cell center as a vector.
func (c GridCoordinate) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{c.X, c.Y, c.Z}
}

func (c GridCoordinate) finite() bool {
	for _, v := range [...]float32{c.X, c.Y, c.Z} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// EncodeState serializes the full player state, the payload of SPAWN and of
// every outbound MOVEMENT.
func EncodeState(st PlayerState) []byte {
	b := make([]byte, StateSize)
	putVec3(b[0:], st.Position)
	putVec3(b[12:], st.Rotation)
	binary.LittleEndian.PutUint32(b[24:], st.OwnerID)
	return b
}

func DecodeState(b []byte) (PlayerState, error) {
	if len(b) != StateSize {
		return PlayerState{}, fmt.Errorf("%w: state is %d bytes, want %d", ErrBadLength, len(b), StateSize)
	}
	return PlayerState{
		Position: getVec3(b[0:]),
		Rotation: getVec3(b[12:]),
		OwnerID:  binary.LittleEndian.Uint32(b[24:]),
	}, nil
}

// EncodeMovement serializes the client→server movement report, which carries
// no owner id: the server knows the sender.
func EncodeMovement(pos, rot mgl32.Vec3) []byte {
	b := make([]byte, MovementSize)
	putVec3(b[0:], pos)
	putVec3(b[12:], rot)
	return b
}

func DecodeMovement(b []byte) (pos, rot mgl32.Vec3, err error) {
	if len(b) != MovementSize {
		return pos, rot, fmt.Errorf("%w: movement is %d bytes, want %d", ErrBadLength, len(b), MovementSize)
	}
	return getVec3(b[0:]), getVec3(b[12:]), nil
}

func EncodeBlock(c GridCoordinate) []byte {
	b := make([]byte, BlockSize)
	putVec3(b, c.Vec3())
	return b
}

func DecodeBlock(b []byte) (GridCoordinate, error) {
	if len(b) != BlockSize {
		return GridCoordinate{}, fmt.Errorf("%w: block is %d bytes, want %d", ErrBadLength, len(b), BlockSize)
	}
	v := getVec3(b)
	c := GridCoordinate{v[0], v[1], v[2]}
	if !c.finite() {
		return GridCoordinate{}, fmt.Errorf("%w: %v", ErrNotFinite, v)
	}
	return c, nil
}

func EncodeDespawn(owner uint32) []byte {
	b := make([]byte, DespawnSize)
	binary.LittleEndian.PutUint32(b, owner)
	return b
}

func DecodeDespawn(b []byte) (uint32, error) {
	if len(b) != DespawnSize {
		return 0, fmt.Errorf("%w: despawn is %d bytes, want %d", ErrBadLength, len(b), DespawnSize)
	}
	return binary.LittleEndian.Uint32(b), nil
}

func putVec3(b []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v[2]))
}

func getVec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}

// Frame format: tag uint16 LE, payload length uint32 LE, payload. On a byte
// stream frames are simply concatenated; on a message transport each message
// carries exactly one frame.

const frameHeaderSize = 6

// MaxPayloadSize bounds inbound payloads; the largest legitimate payload is
// StateSize, the slack leaves room for protocol growth.
const MaxPayloadSize = 1 << 10

// AppendFrame appends one encoded frame to dst.
func AppendFrame(dst []byte, tag Tag, payload []byte) []byte {
	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint16(hdr[0:], uint16(tag))
	binary.LittleEndian.PutUint32(hdr[2:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// WriteFrame writes one frame to w as a single Write call.
func WriteFrame(w io.Writer, tag Tag, payload []byte) error {
	_, err := w.Write(AppendFrame(make([]byte, 0, frameHeaderSize+len(payload)), tag, payload))
	return err
}

// ReadFrame reads one frame from a byte stream.
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	tag := Tag(binary.LittleEndian.Uint16(hdr[0:]))
	size := binary.LittleEndian.Uint32(hdr[2:])
	if size > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: frame payload of %d bytes", ErrBadLength, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return tag, payload, nil
}

// DecodeFrame decodes a frame delivered as one whole message.
func DecodeFrame(b []byte) (Tag, []byte, error) {
	if len(b) < frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: frame of %d bytes", ErrBadLength, len(b))
	}
	tag := Tag(binary.LittleEndian.Uint16(b[0:]))
	size := binary.LittleEndian.Uint32(b[2:])
	if int(size) != len(b)-frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: frame declares %d payload bytes, carries %d", ErrBadLength, size, len(b)-frameHeaderSize)
	}
	return tag, b[frameHeaderSize:], nil
}
