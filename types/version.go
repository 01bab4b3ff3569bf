// Package types defines the wire-level data model shared by every layer of
// the bridge: the host-child protocol envelopes, the manifest, and pointer
// metadata. It has no dependency on engine, transport, or proxy packages.
package types

// Version is the canonical module version. The CLI reports this value for
// diagnostics, and it names the directory the embedded runtime script is
// extracted to.
const Version = "0.1.0"
