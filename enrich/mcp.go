package enrich

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chirp/kit"
)

// RegisterMCP registers the enrichment tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListSentencesTool(srv)
	s.registerSetRelevanceTool(srv)
	s.registerSetEmbeddingTool(srv)
	s.registerAttachShieldCodeTool(srv)
	s.registerDetachShieldCodeTool(srv)
	s.registerListShieldCodesTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- list sentences ---

type listSentencesReq struct {
	DocumentID string `json:"document_id"`
}

func (s *Service) registerListSentencesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_list_sentences",
		Description: "List a document's sentences in section order with their types and enrichment state.",
		InputSchema: inputSchema(map[string]any{
			"document_id": map[string]any{"type": "string", "description": "Document id"},
		}, []string{"document_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listSentencesReq)
		return s.ListSentences(ctx, r.DocumentID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r listSentencesReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- set relevance ---

type setRelevanceReq struct {
	SentenceID string  `json:"sentence_id"`
	Score      float64 `json:"score"`
}

func (s *Service) registerSetRelevanceTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_set_relevance",
		Description: "Set a sentence's relevance score in [0,1].",
		InputSchema: inputSchema(map[string]any{
			"sentence_id": map[string]any{"type": "string", "description": "Sentence id"},
			"score":       map[string]any{"type": "number", "description": "Relevance score in [0,1]"},
		}, []string{"sentence_id", "score"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setRelevanceReq)
		if err := s.SetRelevance(ctx, r.SentenceID, r.Score); err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated"}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setRelevanceReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- set embedding ---

type setEmbeddingReq struct {
	SentenceID string    `json:"sentence_id"`
	Embedding  []float32 `json:"embedding"`
}

func (s *Service) registerSetEmbeddingTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_set_embedding",
		Description: "Store an embedding vector on a sentence.",
		InputSchema: inputSchema(map[string]any{
			"sentence_id": map[string]any{"type": "string", "description": "Sentence id"},
			"embedding": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "number"},
				"description": "Embedding vector",
			},
		}, []string{"sentence_id", "embedding"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*setEmbeddingReq)
		if err := s.SetEmbedding(ctx, r.SentenceID, r.Embedding); err != nil {
			return nil, err
		}
		return map[string]any{"status": "updated", "dims": len(r.Embedding)}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setEmbeddingReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- attach / detach shield codes ---

type shieldLinkReq struct {
	SentenceID   string `json:"sentence_id"`
	ShieldCodeID string `json:"shield_code_id"`
}

func decodeShieldLink(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r shieldLinkReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func shieldLinkSchema() map[string]any {
	return inputSchema(map[string]any{
		"sentence_id":    map[string]any{"type": "string", "description": "Sentence id"},
		"shield_code_id": map[string]any{"type": "string", "description": "Shield code id"},
	}, []string{"sentence_id", "shield_code_id"})
}

func (s *Service) registerAttachShieldCodeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_attach_shield_code",
		Description: "Attach a shield code to a sentence.",
		InputSchema: shieldLinkSchema(),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*shieldLinkReq)
		if err := s.AttachShieldCode(ctx, r.SentenceID, r.ShieldCodeID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "attached"}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeShieldLink)
}

func (s *Service) registerDetachShieldCodeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_detach_shield_code",
		Description: "Detach a shield code from a sentence.",
		InputSchema: shieldLinkSchema(),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*shieldLinkReq)
		if err := s.DetachShieldCode(ctx, r.SentenceID, r.ShieldCodeID); err != nil {
			return nil, err
		}
		return map[string]any{"status": "detached"}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeShieldLink)
}

// --- list shield codes ---

func (s *Service) registerListShieldCodesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chirp_list_shield_codes",
		Description: "List all shield codes with their categories.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return s.ListShieldCodes(ctx)
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: struct{}{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
