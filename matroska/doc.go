// Package matroska packs coded media frames into Matroska Block elements.
//
// A muxer creates a Table holding its tracks and clusters, builds a Handle per
// output frame group, feeds it frames with AddFrameAuto and finally asks the
// live element for its size and bytes. Blocks choose the most compact lacing
// for multi-frame payloads, keep their timestamp relative to the parent
// cluster and own the Buffers handed to them.
//
// Nothing in this package is safe for concurrent mutation.
package matroska
