// Package symbols is the external Symbol Resolver client (the one
// collaborator the Thread Scanner's resolveAddr precedence chain prefers
// over the Exports Map and the module+offset fallback): a thin gRPC
// client invoking a single hand-declared RPC rather than a generated
// service stub.
package symbols

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// Resolver implements threadscan.SymbolResolver against a remote debug
// symbol server.
type Resolver struct {
	conn *grpc.ClientConn
}

// Dial connects to target (host:port) with the given dial timeout.
func Dial(target string, dialTimeout time.Duration) (*Resolver, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, target,
		grpc.WithInsecure(),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, err
	}
	return &Resolver{conn: conn}, nil
}

// Close tears down the connection.
func (r *Resolver) Close() error { return r.conn.Close() }

// Resolve implements threadscan.SymbolResolver. moduleBase/moduleSize are
// unknown to the caller at this layer, so this resolves purely by
// address; set them via ResolveInModule when the caller has the owning
// module's range.
func (r *Resolver) Resolve(ctx context.Context, addr uint64) (string, bool) {
	return r.ResolveInModule(ctx, 0, 0, addr)
}

// ResolveInModule calls the resolver's one RPC directly through
// ClientConn.Invoke, with moduleBase/moduleSize as hints for resolvers
// that index symbols per-module.
func (r *Resolver) ResolveInModule(ctx context.Context, moduleBase, moduleSize, addr uint64) (string, bool) {
	req := &SymbolRequest{ModuleBase: moduleBase, ModuleSize: moduleSize, Address: addr}
	resp := &SymbolResponse{}
	if err := r.conn.Invoke(ctx, resolveMethod, req, resp); err != nil {
		return "", false
	}
	return resp.Name, resp.Found
}
