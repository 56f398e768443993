// Package discovery finds ESP32 cameras on the local network.
//
// The primary path is a range scan: every address base.start .. base.end is
// probed with GET /status, one address at a time, in ascending order. The
// scanner reports a ScanState snapshot after every probe so callers can show
// progress and partial results while the scan is running.
//
// # Probing
//
// A probe is a liveness check only. Any completed HTTP response counts as
// reachable; a timeout or transport error counts as unreachable. The probe
// never returns an error and always answers within its timeout (1s by
// default), because the deadline cancels the underlying request.
//
// # Usage Example
//
//	scanner := discovery.NewRangeScanner(discovery.NewHTTPProber(time.Second))
//	state, err := scanner.Scan(ctx, discovery.ScanConfig{
//	    BaseAddress: "192.168.4",
//	    StartRange:  1,
//	    EndRange:    20,
//	}, func(s discovery.ScanState) {
//	    fmt.Printf("%d%% (%d found)\n", s.ProgressPercent, len(s.Results))
//	})
//
// # Sequential Scanning
//
// Probes are deliberately not parallel. The soft access point on these
// boards cannot service concurrent connection attempts reliably, and a
// parallel sweep produces false negatives.
//
// # mDNS
//
// MDNSScanner browses "_http._tcp" announcements and keeps hosts that look
// like camera firmware. It supplements range scanning and never replaces it.
package discovery
