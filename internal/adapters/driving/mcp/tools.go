package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// defaultSession is used when the client does not name a session.
const defaultSession = "mcp"

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question  string `json:"question" jsonschema:"the question to answer from the ingested documents"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation session; turns in the same session share history (default mcp)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer    string           `json:"answer"`
	Citations []string         `json:"citations"`
	Evidence  []EvidenceOutput `json:"evidence,omitempty"`
}

// EvidenceOutput is one chunk that was fed into the prompt.
type EvidenceOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Ordinal    int     `json:"ordinal"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// ListDocumentsInput is the (empty) input schema for list_documents.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output schema for list_documents.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput summarises one document.
type DocumentOutput struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Error      string `json:"error,omitempty"`
	UploadedAt string `json:"uploaded_at"`
}

// DeleteDocumentInput is the input schema for delete_document.
type DeleteDocumentInput struct {
	Document string `json:"document" jsonschema:"document id or filename"`
}

// DeleteDocumentOutput is the output schema for delete_document.
type DeleteDocumentOutput struct {
	Deleted DocumentOutput `json:"deleted"`
}

// IngestPDFInput is the input schema for ingest_pdf.
// Either Path or ContentBase64 must be set.
type IngestPDFInput struct {
	Path          string `json:"path,omitempty" jsonschema:"path of a PDF on the server's filesystem"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"base64 encoded PDF bytes"`
	Filename      string `json:"filename,omitempty" jsonschema:"citation name, required with content_base64"`
	DocumentID    string `json:"document_id,omitempty" jsonschema:"id to store the document under (generated when empty)"`
}

// IngestPDFOutput is the output schema for ingest_pdf.
type IngestPDFOutput struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the ingested PDF documents, with citations",
	}, s.handleAsk)

	if s.ports.Documents != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List ingested documents and their ingestion status",
		}, s.handleListDocuments)

		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "delete_document",
			Description: "Delete a document and its chunks by id or filename",
		}, s.handleDeleteDocument)
	}

	if s.ports.Ingest != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ingest_pdf",
			Description: "Ingest a PDF so its content can be asked about",
		}, s.handleIngestPDF)
	}
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	session := input.SessionID
	if session == "" {
		session = defaultSession
	}

	answer, err := s.ports.RAG.Ask(ctx, session, input.Question)
	if err != nil {
		return nil, AskOutput{}, errors.New(domain.UserMessage(err))
	}

	out := AskOutput{
		Answer:    answer.Text,
		Citations: answer.Citations,
		Evidence:  make([]EvidenceOutput, len(answer.Evidence)),
	}
	if out.Citations == nil {
		out.Citations = []string{}
	}
	for i, ev := range answer.Evidence {
		out.Evidence[i] = EvidenceOutput{
			DocumentID: ev.Chunk.DocumentID,
			Filename:   ev.Filename,
			Ordinal:    ev.Chunk.Ordinal,
			Score:      ev.Score,
			Content:    ev.Chunk.Content,
		}
	}
	return nil, out, nil
}

func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.ports.Documents.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, fmt.Errorf("listing documents: %w", err)
	}

	out := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		out.Documents[i] = documentOutput(&docs[i])
	}
	return nil, out, nil
}

func (s *Server) handleDeleteDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	if input.Document == "" {
		return nil, DeleteDocumentOutput{}, errors.New("document is required")
	}
	doc, err := s.ports.Documents.Delete(ctx, input.Document)
	if err != nil {
		return nil, DeleteDocumentOutput{}, fmt.Errorf("deleting %q: %w", input.Document, err)
	}
	return nil, DeleteDocumentOutput{Deleted: documentOutput(doc)}, nil
}

func (s *Server) handleIngestPDF(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestPDFInput,
) (*mcp.CallToolResult, IngestPDFOutput, error) {
	data, filename, err := readIngestInput(input)
	if err != nil {
		return nil, IngestPDFOutput{}, err
	}

	res, err := s.ports.Ingest.Ingest(ctx, input.DocumentID, filename, data)
	if err != nil {
		return nil, IngestPDFOutput{}, fmt.Errorf("ingesting %s: %w", filename, err)
	}
	return nil, IngestPDFOutput{
		DocumentID: res.DocumentID,
		Filename:   res.Filename,
		Status:     res.Status.String(),
		Chunks:     res.Chunks,
	}, nil
}

func readIngestInput(input IngestPDFInput) ([]byte, string, error) {
	switch {
	case input.Path != "" && input.ContentBase64 != "":
		return nil, "", errors.New("set either path or content_base64, not both")
	case input.Path != "":
		data, err := os.ReadFile(input.Path)
		if err != nil {
			return nil, "", fmt.Errorf("reading %s: %w", input.Path, err)
		}
		name := input.Filename
		if name == "" {
			name = filepath.Base(input.Path)
		}
		return data, name, nil
	case input.ContentBase64 != "":
		if input.Filename == "" {
			return nil, "", errors.New("filename is required with content_base64")
		}
		data, err := base64.StdEncoding.DecodeString(input.ContentBase64)
		if err != nil {
			return nil, "", fmt.Errorf("decoding content_base64: %w", err)
		}
		return data, input.Filename, nil
	default:
		return nil, "", errors.New("path or content_base64 is required")
	}
}

func documentOutput(doc *domain.Document) DocumentOutput {
	return DocumentOutput{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Status:     doc.Status.String(),
		Pages:      doc.PageCount,
		Chunks:     doc.ChunkCount,
		Error:      doc.Error,
		UploadedAt: doc.UploadedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
