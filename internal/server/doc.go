// Package server binds the JSON language service to a JSON-RPC connection
// speaking the Language Server Protocol.
//
// The server keeps the open documents, publishes diagnostics after a
// document has been quiet for a short delay and answers the feature
// requests (completion, hover, formatting, symbols, folding, selection
// ranges and colors). Schemas come from three places, merged in this
// order:
//
//   - associations given in the server configuration
//   - associations pushed by the client with json/schemaAssociations
//   - the json.schemas client setting
//
// Schemas with a scheme the server cannot load itself are requested from
// the client with json/schemaContent.
//
// Requests that may load schemas run on their own goroutine so that the
// client's answers to json/schemaContent are dispatched while they wait.
package server
