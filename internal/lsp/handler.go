// Package lsp serves textual IR documents over the language server protocol, publishing
// parse errors and the diagnostics of the configured pass pipeline.
package lsp

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"strata/internal/config"
	"strata/internal/errors"
	"strata/internal/ir"
	"strata/internal/parser"
	"strata/internal/passes"
)

var log = commonlog.GetLogger("strata.lsp")

// Define the set of supported semantic token types (as required by the LSP spec)
var SemanticTokenTypes = []string{
	"keyword",
	"type",
	"function",
	"variable",
	"property",
	"operator",
	"number",
	"string",
	"comment",
}

// Define the set of supported semantic token modifiers
var SemanticTokenModifiers = []string{
	"declaration",
}

// AnalysisTimeout bounds the pipeline run behind one diagnostics update
const AnalysisTimeout = 10 * time.Second

// StrataHandler implements the LSP server handlers for textual IR documents
type StrataHandler struct {
	mu      sync.RWMutex
	content map[string]string
	modules map[string]*ir.Module

	// LoadConfig resolves the configuration for a document path
	LoadConfig func(path string) (*config.Config, error)
}

// NewStrataHandler creates and returns a new StrataHandler instance
func NewStrataHandler() *StrataHandler {
	return &StrataHandler{
		content:    make(map[string]string),
		modules:    make(map[string]*ir.Module),
		LoadConfig: configFor,
	}
}

// configFor loads the strata.yaml governing path, or the defaults when there is none
func configFor(path string) (*config.Config, error) {
	found, err := config.Find(filepath.Dir(path))
	if err != nil || found == "" {
		return config.Default(), err
	}
	return config.Load(found)
}

// Initialize responds to the LSP client's initialize request and advertises the server's capabilities
func (h *StrataHandler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("initialize")

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true), // notify on open/close events
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true), // support full-document semantic token requests
			},
		},
	}, nil
}

// Initialized is called after the client receives the server's capabilities and completes initialization
func (h *StrataHandler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	log.Info("initialized")
	return nil
}

// Shutdown handles the LSP shutdown request
func (h *StrataHandler) Shutdown(ctx *glsp.Context) error {
	log.Info("shutdown")
	return nil
}

// SetTrace handles the client's trace level changes
func (h *StrataHandler) SetTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor
func (h *StrataHandler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	log.Infof("opened %s", params.TextDocument.URI)

	diagnostics, err := h.Analyze(params.TextDocument.URI, params.TextDocument.Text)
	if err != nil {
		return err
	}
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentDidClose handles file close notifications from the editor
func (h *StrataHandler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	log.Infof("closed %s", params.TextDocument.URI)

	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, path)
	delete(h.modules, path)

	return nil
}

// TextDocumentDidChange handles file change notifications from the editor. Only full
// document sync is advertised, so the last change carries the whole text.
func (h *StrataHandler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	log.Debugf("changed %s", params.TextDocument.URI)

	var text string
	found := false
	for _, change := range params.ContentChanges {
		if whole, ok := change.(protocol.TextDocumentContentChangeEventWhole); ok {
			text, found = whole.Text, true
		}
	}
	if !found {
		return nil
	}

	diagnostics, err := h.Analyze(params.TextDocument.URI, text)
	if err != nil {
		return err
	}
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentCompletion offers the registered operation names
func (h *StrataHandler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	kind := protocol.CompletionItemKindFunction
	var items []protocol.CompletionItem
	for _, name := range ir.RegisteredOps() {
		items = append(items, protocol.CompletionItem{Label: name, Kind: &kind})
	}
	return &protocol.CompletionList{
		IsIncomplete: false,
		Items:        items,
	}, nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the entire document
func (h *StrataHandler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	source, ok := h.content[path]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s is not open", params.TextDocument.URI)
	}

	return &protocol.SemanticTokens{
		Data: encodeSemanticTokens(collectSemanticTokens(source)),
	}, nil
}

// Module returns the last successfully parsed module of a document, before any pass ran
func (h *StrataHandler) Module(rawURI protocol.DocumentUri) *ir.Module {
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.modules[path]
}

// Analyze parses a document and runs the configured pipeline on it. The returned slice is
// never nil so that publishing it clears stale diagnostics.
func (h *StrataHandler) Analyze(rawURI protocol.DocumentUri, text string) ([]protocol.Diagnostic, error) {
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.content[path] = text
	h.mu.Unlock()

	diagnostics := []protocol.Diagnostic{}

	m, parseErrs := parser.ParseSource(path, text)
	if len(parseErrs) > 0 {
		return append(diagnostics, ConvertParseErrors(parseErrs)...), nil
	}
	h.mu.Lock()
	h.modules[path] = m
	h.mu.Unlock()

	cfg, err := h.LoadConfig(path)
	if err != nil {
		return append(diagnostics, ConvertCompilerErrors(errors.AsList(err))...), nil
	}
	pipeline, err := cfg.Build()
	if err != nil {
		return append(diagnostics, ConvertCompilerErrors(errors.AsList(err))...), nil
	}

	// Passes rewrite in place; run them on a separate parse of the same text
	work, _ := parser.ParseSource(path, text)
	cfg.ApplyBounds(work)

	ctx, cancel := context.WithTimeout(context.Background(), AnalysisTimeout)
	defer cancel()
	if err := pipeline.Run(ctx, work); err != nil {
		diagnostics = append(diagnostics, ConvertCompilerErrors(errors.AsList(err))...)
		for _, pass := range pipeline.Passes() {
			if lower, ok := pass.(*passes.LowerPass); ok && lower.Result != nil {
				diagnostics = append(diagnostics, ConvertContractReport(lower.Result.Report)...)
			}
		}
	}
	log.Debugf("%s: %d diagnostics", path, len(diagnostics))
	return diagnostics, nil
}

// Convert URI to platform-local file path
func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path

	// On Windows, remove leading slash (e.g., /C:/...) -> C:/...
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}

	// Normalize to platform-specific separators
	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	log.Debugf("publishing %d diagnostics for %s", len(diagnostics), uri)

	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool {
	return &b
}

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind {
	return &k
}
