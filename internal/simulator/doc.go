// Package simulator serves a fake ESP32 camera for development and tests.
//
// The simulator speaks the same HTTP surface as the stock camera firmware,
// split across two ports the way the device does it:
//
//   - control port: GET /status (JSON sensor settings), GET /capture (one JPEG)
//   - stream port:  GET /stream (multipart/x-mixed-replace; boundary=frame)
//     and GET /ws (one binary WebSocket message per JPEG)
//
// Frames are small generated JPEGs whose colour and bar position change on
// every frame. Failure knobs make /capture answer 500 or the stream
// endpoints answer 503, so error paths can be exercised without hardware.
//
// # Usage Example
//
//	srv := simulator.New(simulator.Config{Port: 8080, StreamPort: 8081})
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package simulator
