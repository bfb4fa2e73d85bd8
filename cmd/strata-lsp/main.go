// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"strata/internal/lsp"
)

const lsName = "strata" // Name identifier for the language server

var (
	version = "0.1.0"        // Server version
	handler protocol.Handler // Protocol handler instance (wired up below)
)

func main() {
	verbosity := flag.Int("v", 1, "log verbosity")
	logFile := flag.String("log", "", "log to this file instead of stderr")
	flag.Parse()

	var path *string
	if *logFile != "" {
		path = logFile
	}
	commonlog.Configure(*verbosity, path)
	log := commonlog.GetLogger("strata.lsp")

	strataHandler := lsp.NewStrataHandler()

	// Wire up the handler with specific LSP method implementations
	handler = protocol.Handler{
		Initialize:                     strataHandler.Initialize,
		Initialized:                    strataHandler.Initialized,
		Shutdown:                       strataHandler.Shutdown,
		SetTrace:                       strataHandler.SetTrace,
		TextDocumentDidOpen:            strataHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           strataHandler.TextDocumentDidClose,
		TextDocumentDidChange:          strataHandler.TextDocumentDidChange,
		TextDocumentCompletion:         strataHandler.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: strataHandler.TextDocumentSemanticTokensFull,
	}

	// The stdio transport is what most editors use to talk to a language server
	s := server.NewServer(&handler, lsName, false)

	log.Infof("starting %s language server %s", lsName, version)
	if err := s.RunStdio(); err != nil {
		log.Errorf("language server stopped: %s", err)
		os.Exit(1)
	}
}
