package wire

import (
	"encoding/binary"
	"encoding/json"
)

// AppInfo is the 16-byte payload of an SkStgMapUpdate command: the chosen
// delta trade-off (req) followed by a reserved field (resp), both encoded
// as little-endian u64.
type AppInfo struct {
	Req  uint64
	Resp uint64
}

// Bytes encodes AppInfo as req.to_le_bytes() ++ resp.to_le_bytes().
func (a AppInfo) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], a.Req)
	binary.LittleEndian.PutUint64(b[8:16], a.Resp)
	return b
}

// SkStgMapUpdate is the sole outbound command shape: an instruction to
// update a per-socket storage map entry with a 16-byte payload.
type SkStgMapUpdate struct {
	MapName string  `json:"map_name"`
	Val     [16]byte `json:"val"`
	Flag    int      `json:"flag"`
}

// FlowOp is the tagged union of operations a Command can carry against a
// flow. SkStgMapUpdate is the only variant currently defined.
type FlowOp struct {
	SkStgMapUpdate SkStgMapUpdate `json:"SkStgMapUpdate"`
}

// FlowCommand is the body of a Command.Flow envelope.
type FlowCommand struct {
	FlowID uint32 `json:"flow_id"`
	Op     FlowOp `json:"op"`
}

// Command is the outbound JSON envelope. Flow is the only variant used by
// this service.
type Command struct {
	Flow FlowCommand `json:"Flow"`
}

// NewSkStgMapUpdateCommand builds the command that pushes a new delta
// trade-off to the agent for flowID.
func NewSkStgMapUpdateCommand(flowID uint32, tradeOff int) Command {
	info := AppInfo{Req: uint64(tradeOff), Resp: 0}
	return Command{
		Flow: FlowCommand{
			FlowID: flowID,
			Op: FlowOp{
				SkStgMapUpdate: SkStgMapUpdate{
					MapName: "sk_stg_map",
					Val:     info.Bytes(),
					Flag:    0,
				},
			},
		},
	}
}

// Encode marshals the command to its wire JSON form.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}
