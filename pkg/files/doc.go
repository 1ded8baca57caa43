// Package files provides the file plumbing behind annotation resolution:
// clients for the execution container's file API and the backend file
// store (the two download sources), and a durable blob store client (the
// upload target). The engine wires them into one locate-download-upload
// pipeline.
package files
