// Package wstransport provides the WebSocket realization of the BLIP
// Transport: each BLIP frame travels as one binary WebSocket message.
//
// The WebSocket subprotocol token is "BLIP_3", or "BLIP_3+<app>" when an
// application subprotocol is layered on top. Both the Upgrader and Dial
// negotiate it and refuse peers that do not offer it.
//
// Server side:
//
//	upgrader := &wstransport.Upgrader{}
//	mux.Handle("/blip", wstransport.Handler(upgrader, func(e *blip.Engine) {
//	    e.Handle("Echo", echoHandler)
//	}))
//
// Client side:
//
//	conn, err := wstransport.Dial(ctx, "ws://host/blip", "")
//	if err != nil {
//	    // Handle error
//	}
//	engine, err := blip.NewEngine(conn)
package wstransport
