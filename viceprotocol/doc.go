// Package viceprotocol is a client for the binary remote monitor of the
// VICE Commodore emulator (API version 2), started with
// -binarymonitor.
//
// # Protocol Overview
//
// Every request and response is a length-prefixed binary frame. All
// multi-byte fields are little-endian.
//
//	Request (client -> emulator):
//	  +-----+-----+-------------+------------+---------+----------
//	  | STX | API | body length | request ID | command | body ...
//	  |  1  |  1  |      4      |     4      |    1    |
//	  +-----+-----+-------------+------------+---------+----------
//
//	Response (emulator -> client):
//	  +-----+-----+-------------+------+-------+------------+----------
//	  | STX | API | body length | type | error | request ID | body ...
//	  |  1  |  1  |      4      |  1   |   1   |     4      |
//	  +-----+-----+-------------+------+-------+------------+----------
//
// Responses carrying the request ID 0xFFFFFFFF are unsolicited events
// (Stopped, Resumed, Jam, checkpoint hits).
//
// # Basic Usage
//
// The client mirrors emulator state into stores the application
// provides. The machine package has ready-made ones:
//
//	mirror := machine.NewMirror()
//	breakpoints := machine.NewBreakpoints()
//	client := viceprotocol.NewClient(mirror, breakpoints, nil, viceprotocol.DefaultOptions())
//
//	if err := client.Connect("127.0.0.1", viceprotocol.DefaultPort); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect()
//
//	// Drive the heartbeat.
//	go func() {
//	    for range time.Tick(10 * time.Millisecond) {
//	        client.Tick()
//	    }
//	}()
//
//	client.Break()
//
// Commands return as soon as the request is written. When the emulator
// stops, the client fetches all of main memory, the checkpoint list and
// the display on its own; the results land in the stores.
//
// # Event Handling
//
//	client.SetEventHandler(func(event viceprotocol.Event) {
//	    switch event.Type {
//	    case viceprotocol.CmdStopped:
//	        fmt.Printf("Stopped at $%04X\n", event.PC)
//	    case viceprotocol.CmdCheckpointGet:
//	        fmt.Printf("Checkpoint %d hit\n", event.Checkpoint.Number)
//	    }
//	})
//
// # Thread Safety
//
// The Client type is safe for concurrent use from multiple goroutines.
// Store callbacks and the event handler run on the receive goroutine.
package viceprotocol
