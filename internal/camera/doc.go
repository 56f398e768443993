// Package camera talks to the HTTP interface of an ESP32 camera.
//
// Three endpoints matter:
//
//	GET http://A/status       liveness and sensor settings (JSON)
//	GET http://A/capture      one still JPEG
//	GET http://A:81/stream    multipart/x-mixed-replace JPEG stream
//
// Client covers status and capture. Live frames come from a StreamSource:
// MJPEGSource reads the stock multipart stream and WebSocketSource reads
// binary frames from firmware builds that publish on /ws instead.
//
// # Usage Example
//
//	client := camera.NewClient("192.168.4.1")
//	img, err := client.Capture(ctx)
//	if err != nil {
//	    fmt.Println(camera.GetShortErrorMessage(err))
//	    fmt.Println(camera.GetTroubleshootingHint(err))
//	    return
//	}
//	_ = os.WriteFile("photo.jpg", img.Data, 0644)
//
// # Error Handling
//
// Failures are returned as *DeviceError with an ErrorType. Transport errors
// are classified by ClassifyNetworkError (timeout, refused, DNS, unreachable).
// A non-2xx capture is ErrTypeHTTP; a 2xx capture with an empty body is
// ErrTypeCapture. Nothing in this package retries.
package camera
