// Package engine is the real-time core of the amp modeling signal chain.
//
// Two neural model families (a sample-accurate "profile" capture and a
// real-time recurrent network) each hold two loadable slots, A and B; a
// smoothed crossfade blends the families, a DC blocker cleans the result,
// and two impulse-response convolution channels with their own crossfade
// form the cabinet stage.
//
// The engine runs on exactly two goroutines. The audio thread calls Process
// once per buffer; it never blocks on I/O, never allocates in steady state,
// and never waits on a lock another thread can hold indefinitely. A single
// background worker performs all blocking work: parsing model files and
// tearing down/reconfiguring convolution engines. Hand-off is a
// capacity-one request channel guarded by an atomic busy flag (at most one
// operation in flight), and a capacity-one completion channel the
// dispatcher drains at buffer boundaries to publish notifications. Newly
// loaded resources become visible to the audio path only when the worker
// flips the slot's activation flag, so a buffer never observes a
// half-loaded model or a torn-down convolver.
package engine
