// Package voice implements the realtime voice session: full-duplex streaming
// of microphone audio to a remote conversational endpoint and gapless
// playback of the synthesized speech it returns.
//
// A Session owns one capture source, one playback sink, one transport link
// and one playback queue, and drives a small state machine:
//
//	idle → connecting → listening ⇄ speaking → idle
//
// Capture runs continuously while the session is up; playback state never
// gates it (the remote endpoint owns echo and interruption policy). Inbound
// audio frames are queued and played strictly in arrival order, one frame
// scheduled on the sink at a time, each scheduled only after the previous
// frame's completion callback fired.
//
// Usage:
//
//	sess := voice.New(voice.DefaultConfig("ws://localhost:8765/ws/voice"), nil)
//
//	sess.OnState(func(st voice.State) { fmt.Println("state:", st) })
//	sess.OnTranscript(func(text string) { fmt.Println("assistant:", text) })
//	sess.OnError(func(err error) { fmt.Println("error:", err) })
//
//	if err := sess.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Stop()
//
// There is no reconnection policy inside the session: a transport failure
// tears everything down and reports the error; the caller decides whether to
// build a fresh session and Start again.
package voice
