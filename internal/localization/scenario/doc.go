// Package scenario feeds the filter: it defines the per-step frame
// (control input plus a batch of sensor-frame observations), reads frames
// as JSON lines from files or a serial port, and synthesizes frames from a
// known map for demos and end-to-end tests.
package scenario
