// Package jsonrpc implements JSON-RPC 2.0 message connections using the
// Language Server Protocol base protocol framing.
//
// # Architecture
//
// The package is organized in layers:
//
//   - MessageBuffer: accumulates raw chunks and extracts header blocks and bodies
//   - StreamMessageReader / StreamMessageWriter: Content-Length framing over io streams
//   - Semaphore: FIFO admission used to serialize writes
//   - CancellationTokenSource: cooperative cancellation for requests
//   - Connection: request/response correlation, dispatch and cancellation
//
// # Quick Start
//
//	conn := jsonrpc.NewStreamConnection(os.Stdin, os.Stdout)
//	conn.OnRequest(jsonrpc.NewSignature("sum", 2), func(params json.RawMessage, _ jsonrpc.CancellationToken) (any, error) {
//	    var a, b int
//	    if err := jsonrpc.UnmarshalParams(params, &a, &b); err != nil {
//	        return nil, err
//	    }
//	    return a + b, nil
//	})
//	if err := conn.Listen(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Dispatch
//
// Inbound messages are queued and dispatched one at a time in arrival
// order. A $/cancelRequest for a request that is still queued is handed to
// the ConnectionStrategy, which may answer the request without running its
// handler. Handlers that need to run concurrently with later messages
// return a Future, usually built with Async.
//
// # Wire Format
//
//	Content-Length: 54\r\n
//	\r\n
//	{"jsonrpc":"2.0","id":1,"method":"sum","params":[1,2]}
//
// Content-Encoding (gzip, deflate) and Content-Type charsets other than
// UTF-8 are supported through reader and writer options.
package jsonrpc
