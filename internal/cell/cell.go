// Package cell implements the fixed-size framed unit exchanged on OR
// links (glossary: "Cell"). spec.md treats the cell formatter as an
// external collaborator ("write_cell_to_buf (external formatter)");
// this package is the concrete implementation send_destroy (§4.6) and
// the OR protocol handler write through.
package cell

import "encoding/binary"

// Size is the fixed on-wire cell size.
const Size = 512

// Command identifies a cell's type.
type Command byte

const (
	CommandPadding      Command = 0
	CommandCreate       Command = 1
	CommandCreated      Command = 2
	CommandRelay        Command = 3
	CommandDestroy      Command = 4
	CommandCreateFast   Command = 5
	CommandCreatedFast  Command = 6
)

// Cell is one fixed-size framed unit: a circuit id (ACI), a command,
// and a fixed-width payload.
type Cell struct {
	CircuitID uint32
	Command   Command
	Payload   [Size - 5]byte
}

// Destroy builds a DESTROY cell for circuitID (§8 scenario 6).
func Destroy(circuitID uint32) Cell {
	return Cell{CircuitID: circuitID, Command: CommandDestroy}
}

// Marshal encodes c to its fixed-size wire form.
func (c Cell) Marshal() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[0:4], c.CircuitID)
	buf[4] = byte(c.Command)
	copy(buf[5:], c.Payload[:])
	return buf
}

// Unmarshal decodes a fixed-size wire cell from buf. buf must be
// exactly Size bytes.
func Unmarshal(buf []byte) (Cell, bool) {
	if len(buf) != Size {
		return Cell{}, false
	}
	var c Cell
	c.CircuitID = binary.BigEndian.Uint32(buf[0:4])
	c.Command = Command(buf[4])
	copy(c.Payload[:], buf[5:])
	return c, true
}
