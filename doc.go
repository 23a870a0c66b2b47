/*
Package archiveserver is an HTTP/1.x server engine with typed request
extraction, built for serving archive-style sites and APIs.

A fixed pool of worker goroutines owns accepted connections. Each request is
parsed, routed through a compressed path trie, passed through "before"
middleware, extracted into typed handler arguments, handled, and passed
through "after" middleware. Responses are deflated for clients that accept
it, and connections are kept alive according to the HTTP version and the
Connection header.

Quick Start

	package main

	import (
	    "github.com/searchktools/archive-server/app"
	    "github.com/searchktools/archive-server/config"
	    "github.com/searchktools/archive-server/core/extract"
	    "github.com/searchktools/archive-server/core/respond"
	)

	func main() {
	    application, err := app.New(config.New(), nil)
	    if err != nil {
	        panic(err)
	    }

	    engine := application.Engine()
	    engine.GET("/stories/:id", func(args extract.Args) (respond.Responder, error) {
	        return respond.Text("story " + extract.Arg[string](args, 0)), nil
	    }, extract.Param("id"))

	    application.Run()
	}

Routes

Patterns are made of static text, :name parameters that capture up to the
next '/', and a trailing *name catch-all. Parameters may be embedded in a
segment, as in /opds/root.:ext. The longest static match wins, then
parameters, then the catch-all.

Modules

  - app: Application lifecycle, logging, metrics and tracing
  - config: Configuration from flags, environment and JSON/TOML/YAML files
  - core: Engine, route pipeline and connection server
  - core/http: Request parsing and response writing
  - core/router: Path trie router
  - core/extract: Typed extractors and their rejections
  - core/respond: Responders and body codecs
  - core/middleware: Before/after middleware
  - core/extensions: Type-keyed value store
  - core/arraymap: Small ordered map for headers and parameters
  - core/pools: Worker pool, response buffers and GC settings
*/
package archiveserver
