package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection
		{
			Name:        "stamp_detect",
			Description: "Decide whether a document (PDF, DOCX or image) contains one of the loaded reference stamps. Returns the match decision, best score, page, stamp name, margin and, when localized, the bounding box with its NCC/SSIM verification. Inline PDF images (BI/ID/EI) are only seen through page rendering, which needs PDF_RENDER_FALLBACK enabled and a cgo build; without it such PDFs report no images.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the document"),
					"mime_type": map[string]interface{}{
						"type":        "string",
						"description": "Optional declared MIME type. Magic bytes take precedence.",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "stamp_locate",
			Description: "Find where a named reference stamp sits on an image. Runs only the multi-scale locator and patch verifier.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the page image"),
					"stamp": map[string]interface{}{
						"type":        "string",
						"description": "Reference stamp file name as listed by stamp_list",
					},
					"annotate": map[string]interface{}{
						"type":        "boolean",
						"description": "Also return the page as base64 PNG with the box drawn. Default false",
						"default":     false,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Box color as hex (#RRGGBB or #RRGGBBAA). Default magenta",
					},
				},
				"required": []string{"path", "stamp"},
			},
		},

		// Reference library
		{
			Name:        "stamp_list",
			Description: "List the loaded reference stamps with their dimensions and robustness variants.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "stamp_reload",
			Description: "Rebuild the reference stamp library from disk. Detections already running keep the previous library.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"directory": map[string]interface{}{
						"type":        "string",
						"description": "Optional stamp directory. Defaults to STAMP_DIR.",
					},
				},
			},
		},

		// Feature primitives
		{
			Name:        "image_features",
			Description: "Compute the perceptual hash, hue/saturation histogram peak and edge descriptor size of an image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the image file"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_compare",
			Description: "Compare two images signal by signal: edge cosine, color histogram, hash, SSIM and NCC, plus the fused coarse score.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path_a": pathProperty("Absolute path to the first image"),
					"path_b": pathProperty("Absolute path to the second image"),
				},
				"required": []string{"path_a", "path_b"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
