// Package demux recovers discrete frames from chunked transport reads.
//
// The TCP byte stream carries fixed-size frames back-to-back with no
// delimiters, so the Demuxer buffers arbitrarily-split chunks and emits
// complete frames in order, byte-identical to the source. The UDP
// Reassembler concatenates fixed-size datagrams positionally and drops
// frames that arrive short (loss-tolerant, no recovery).
package demux
