package symbols

import (
	"github.com/golang/protobuf/proto"
)

// SymbolRequest and SymbolResponse are hand-maintained legacy protobuf
// messages (pre protoc-gen-go v2 shape: plain struct, protobuf struct
// tags, Reset/String/ProtoMessage only) rather than protoc-generated
// ones, matching the era the teacher's pinned google.golang.org/grpc and
// github.com/golang/protobuf versions come from. The legacy message
// shape is still supported by golang/protobuf's reflection-based
// compatibility layer, so proto.Marshal/proto.Unmarshal work on these
// exactly as they would on generated code.
type SymbolRequest struct {
	ModuleBase uint64 `protobuf:"varint,1,opt,name=module_base,json=moduleBase,proto3" json:"module_base,omitempty"`
	ModuleSize uint64 `protobuf:"varint,2,opt,name=module_size,json=moduleSize,proto3" json:"module_size,omitempty"`
	Address    uint64 `protobuf:"varint,3,opt,name=address,proto3" json:"address,omitempty"`
}

func (m *SymbolRequest) Reset()         { *m = SymbolRequest{} }
func (m *SymbolRequest) String() string { return proto.CompactTextString(m) }
func (*SymbolRequest) ProtoMessage()    {}

// SymbolResponse carries the resolved symbol name, if any.
type SymbolResponse struct {
	Name  string `protobuf:"bytes,1,opt,name=name,proto3" json:"name,omitempty"`
	Found bool   `protobuf:"varint,2,opt,name=found,proto3" json:"found,omitempty"`
}

func (m *SymbolResponse) Reset()         { *m = SymbolResponse{} }
func (m *SymbolResponse) String() string { return proto.CompactTextString(m) }
func (*SymbolResponse) ProtoMessage()    {}

// resolveMethod is the one RPC this client needs; there is no generated
// service stub, the client invokes it directly through ClientConn.
const resolveMethod = "/pescan.SymbolResolver/Resolve"
