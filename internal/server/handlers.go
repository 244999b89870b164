package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/ironsheep/stamp-detector/internal/detector"
	"github.com/ironsheep/stamp-detector/internal/imaging"
	"github.com/ironsheep/stamp-detector/internal/matcher"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "stamp_detect", "stamp_list").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// A detection that ran but failed on the document (Success false) is a
// normal tool result, not an execution error.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.log.WithError(err).WithField("tool", params.Name).Warn("Tool execution failed")
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "stamp_detect":
		return s.handleStampDetect(ctx, args)
	case "stamp_locate":
		return s.handleStampLocate(ctx, args)
	case "stamp_list":
		return s.handleStampList(ctx)
	case "stamp_reload":
		return s.handleStampReload(ctx, args)
	case "image_features":
		return s.handleImageFeatures(args)
	case "image_compare":
		return s.handleImageCompare(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs tolerates an absent arguments object.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// === Detection Handlers ===

type stampDetectArgs struct {
	Path     string `json:"path"`
	MimeType string `json:"mime_type"`
}

func (s *Server) handleStampDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a stampDetectArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if a.MimeType == "" {
		a.MimeType = mime.TypeByExtension(filepath.Ext(a.Path))
	}
	return s.det.DetectOnBuffer(ctx, data, a.MimeType), nil
}

type stampLocateArgs struct {
	Path     string `json:"path"`
	Stamp    string `json:"stamp"`
	Annotate bool   `json:"annotate"`
	Color    string `json:"color"`
}

// LocateToolResult is returned by stamp_locate.
type LocateToolResult struct {
	*detector.LocateResult
	Annotated *imaging.AnnotatedImage `json:"annotated,omitempty"`
}

func (s *Server) handleStampLocate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a stampLocateArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" || a.Stamp == "" {
		return nil, fmt.Errorf("path and stamp are required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	loc, err := s.det.Locate(ctx, img, a.Stamp)
	if err != nil {
		return nil, err
	}

	out := &LocateToolResult{LocateResult: loc}
	if a.Annotate && loc.BBox != nil {
		box := image.Rect(loc.BBox.X, loc.BBox.Y, loc.BBox.X+loc.BBox.Width, loc.BBox.Y+loc.BBox.Height)
		if out.Annotated, err = imaging.AnnotateBox(img, box, loc.Score, a.Color, 3); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// === Reference Library Handlers ===

// StampInfo describes one loaded reference stamp.
type StampInfo struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Variants []string `json:"variants"`
}

// StampListResult is returned by stamp_list and GET /v1/stamps.
type StampListResult struct {
	Directory string      `json:"directory"`
	Count     int         `json:"count"`
	LoadedAt  string      `json:"loaded_at,omitempty"`
	Stamps    []StampInfo `json:"stamps"`
}

func (s *Server) handleStampList(ctx context.Context) (interface{}, error) {
	return listStamps(ctx, s.det), nil
}

type stampReloadArgs struct {
	Directory string `json:"directory"`
}

func (s *Server) handleStampReload(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a stampReloadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if _, err := s.det.ReloadStamps(ctx, a.Directory); err != nil {
		return nil, fmt.Errorf("failed to reload stamps: %w", err)
	}
	return listStamps(ctx, s.det), nil
}

// === Feature Primitive Handlers ===

// FeaturesResult is returned by image_features.
type FeaturesResult struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Hash          string  `json:"hash"`
	HistogramBins int     `json:"histogram_bins"`
	PeakBin       int     `json:"peak_bin"`
	PeakWeight    float64 `json:"peak_weight"`
	EdgeLength    int     `json:"edge_length"`
	EdgeNonZero   int     `json:"edge_nonzero"`
	ComputeTimeMs int64   `json:"compute_time_ms"`
}

type imageFeaturesArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageFeatures(args json.RawMessage) (interface{}, error) {
	var a imageFeaturesArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	f := imaging.ComputeFeatures(img)
	peak, weight := imaging.PeakBin(f.Histogram)
	nonZero := 0
	for _, v := range f.Edge {
		if v != 0 {
			nonZero++
		}
	}
	w, h := imaging.DimensionsOf(img)
	return &FeaturesResult{
		Width:         w,
		Height:        h,
		Hash:          imaging.HashHex(f.Hash),
		HistogramBins: len(f.Histogram),
		PeakBin:       peak,
		PeakWeight:    weight,
		EdgeLength:    len(f.Edge),
		EdgeNonZero:   nonZero,
		ComputeTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

// CompareResult is returned by image_compare.
type CompareResult struct {
	Edge  float64 `json:"edge"`
	Color float64 `json:"color"`
	Hash  float64 `json:"hash"`
	SSIM  float64 `json:"ssim"`
	NCC   float64 `json:"ncc"`
	Fused float64 `json:"fused"`
}

type imageCompareArgs struct {
	PathA string `json:"path_a"`
	PathB string `json:"path_b"`
}

func (s *Server) handleImageCompare(args json.RawMessage) (interface{}, error) {
	var a imageCompareArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	imgA, err := s.cache.Load(a.PathA)
	if err != nil {
		return nil, err
	}
	imgB, err := s.cache.Load(a.PathB)
	if err != nil {
		return nil, err
	}

	sim := imaging.Compare(imaging.ComputeFeatures(imgA), imaging.ComputeFeatures(imgB))
	return &CompareResult{
		Edge:  sim.Edge,
		Color: sim.Color,
		Hash:  sim.Hash,
		SSIM:  imaging.SSIM(imgA, imgB),
		NCC:   imaging.NCCImages(imgA, imgB),
		Fused: matcher.QuickWeights.Fuse(matcher.Components{Edge: sim.Edge, Color: sim.Color, Hash: sim.Hash}),
	}, nil
}
