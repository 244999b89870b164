// Package server exposes the stamp detector over MCP (Model Context Protocol)
// and over a small HTTP upload API.
//
// # MCP Protocol
//
// The MCP server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Detection:
//   - stamp_detect: Run the full pipeline on a PDF, DOCX or image
//   - stamp_locate: Locate one named stamp on an image
//
// Reference library:
//   - stamp_list: List loaded stamps and their variants
//   - stamp_reload: Rebuild the library from disk
//
// Feature primitives:
//   - image_features: Hash, histogram peak and edge descriptor of an image
//   - image_compare: Per-signal similarity between two images
//
// # HTTP API
//
// NewHTTPHandler serves the same detector to multipart uploads. Every
// detection response carries its run id in the X-Run-ID header; request
// counts and durations are exported on /metrics.
//
// # Image Caching
//
// Images named by path in tool calls are decoded, normalized and cached for
// the lifetime of the server process. Documents passed to stamp_detect are
// read fresh on every call.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A document the detector cannot read is not a tool error: stamp_detect
// returns the DetectionResult with success false.
package server
