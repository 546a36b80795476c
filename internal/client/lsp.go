package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aspect-build/cairos/internal/logx"
	"github.com/aspect-build/cairos/internal/version"
	"github.com/sourcegraph/jsonrpc2"
)

type position struct {
	Line      int64 `json:"line"`
	Character int64 `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type contentChange struct {
	Range *lspRange `json:"range,omitempty"`
	Text  string    `json:"text"`
}

type didChangeParams struct {
	TextDocument   textDocumentIdentifier `json:"textDocument"`
	ContentChanges []contentChange        `json:"contentChanges"`
}

type didSaveParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type saveOptions struct {
	IncludeText bool `json:"includeText"`
}

type textDocumentSyncOptions struct {
	OpenClose bool        `json:"openClose"`
	Change    int         `json:"change"`
	Save      saveOptions `json:"save"`
}

type serverCapabilities struct {
	TextDocumentSync textDocumentSyncOptions `json:"textDocumentSync"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
	ServerInfo   serverInfo         `json:"serverInfo"`
}

type logMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

const (
	textDocumentSyncIncremental = 2

	messageTypeError = 1
	messageTypeInfo  = 3
)

// sendQueueSize bounds the captures waiting for the sender worker. When it is
// full new captures are dropped.
const sendQueueSize = 64

// LanguageServer is a minimal LSP server that only listens to document
// notifications and feeds them into a Debouncer. Messages are handled in
// arrival order so the debouncer sees the editor's sequence; admitted events
// are sent by a background worker so network latency never holds up the
// message loop.
type LanguageServer struct {
	debouncer *Debouncer
	sends     chan EditorEvent

	exitOnce sync.Once
	exited   chan struct{}
}

func NewLanguageServer(d *Debouncer) *LanguageServer {
	return &LanguageServer{
		debouncer: d,
		sends:     make(chan EditorEvent, sendQueueSize),
		exited:    make(chan struct{}),
	}
}

// Serve speaks LSP over rwc until the client sends exit, disconnects, or ctx
// is cancelled. Captures still queued when Serve returns are dropped.
func (s *LanguageServer) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewBufferedStream(rwc, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(s.handle))
	defer conn.Close()

	sendCtx, stopSends := context.WithCancel(ctx)
	defer stopSends()
	go s.sendLoop(sendCtx, conn)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-conn.DisconnectNotify():
		return nil
	case <-s.exited:
		return nil
	}
}

func (s *LanguageServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "initialize":
		return initializeResult{
			Capabilities: serverCapabilities{
				TextDocumentSync: textDocumentSyncOptions{
					OpenClose: true,
					Change:    textDocumentSyncIncremental,
					Save:      saveOptions{IncludeText: false},
				},
			},
			ServerInfo: serverInfo{Name: "cairos", Version: version.Version},
		}, nil
	case "initialized":
		s.logMessage(ctx, conn, messageTypeInfo, "cairos language server initialized")
		return nil, nil
	case "shutdown":
		return nil, nil
	case "exit":
		s.exitOnce.Do(func() { close(s.exited) })
		return nil, nil
	case "textDocument/didOpen":
		var p didOpenParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		s.observe(EditorEvent{Kind: FileOpened, URI: p.TextDocument.URI, Language: p.TextDocument.LanguageID})
		return nil, nil
	case "textDocument/didChange":
		var p didChangeParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		ev := EditorEvent{Kind: ContentChanged, URI: p.TextDocument.URI}
		if len(p.ContentChanges) > 0 && p.ContentChanges[0].Range != nil {
			start := p.ContentChanges[0].Range.Start
			ev.Line = &start.Line
			ev.Character = &start.Character
		}
		s.observe(ev)
		return nil, nil
	case "textDocument/didSave":
		var p didSaveParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		s.observe(EditorEvent{Kind: FileSaved, URI: p.TextDocument.URI})
		return nil, nil
	default:
		if req.Notif {
			return nil, nil
		}
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: fmt.Sprintf("method not supported: %s", req.Method)}
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

func (s *LanguageServer) observe(ev EditorEvent) {
	if !s.debouncer.admit(ev) {
		return
	}
	select {
	case s.sends <- ev:
	default:
		logx.Warnf("capture queue full, dropping %s %s", ev.Kind, ev.URI)
	}
}

func (s *LanguageServer) sendLoop(ctx context.Context, conn *jsonrpc2.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.sends:
			if err := s.debouncer.sender.Capture(ctx, ev.params()); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.Warnf("capture %s %s: %v", ev.Kind, ev.URI, err)
				s.logMessage(ctx, conn, messageTypeError, fmt.Sprintf("cairos: failed to send event: %v", err))
				continue
			}
			logx.Debugf("captured %s %s", ev.Kind, ev.URI)
		}
	}
}

func (s *LanguageServer) logMessage(ctx context.Context, conn *jsonrpc2.Conn, typ int, msg string) {
	if err := conn.Notify(ctx, "window/logMessage", logMessageParams{Type: typ, Message: msg}); err != nil {
		logx.Debugf("notify window/logMessage: %v", err)
	}
}

// Stdio joins the process's stdin and stdout into one stream.
type Stdio struct{}

func (Stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (Stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (Stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
