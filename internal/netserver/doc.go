// Package netserver is the single-port front end of the lighting server.
//
// Every TCP connection on the listen port starts in a detection state. The
// first four bytes decide its protocol for the rest of its life:
//
//   - "GET " hands the connection, with those bytes replayed, to an
//     http.Server that serves a fixed set of embedded documents and upgrades
//     WebSocket requests on any path.
//   - anything else is Open Pixel Control. Bytes are reassembled into
//     complete messages by a Reassembler and passed to the Handler.
//
// Over WebSocket, binary frames carry one OPC message each and text frames
// carry JSON control messages whose replies are written back as text.
// Broadcast queues a message for every WebSocket client; the queue is
// flushed on a fixed interval rather than immediately.
//
// Lifecycle:
//
//	srv, err := netserver.New(cfg, coord, netserver.Options{Logger: log})
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
//
// Thread Safety: All exported methods are safe for concurrent use.
package netserver
