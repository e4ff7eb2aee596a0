// Package evcodec owns the 2-bit packed event-frame format.
//
// Responsibilities: frame geometry, packing pixel polarity grids into
// fixed-size byte buffers, and unpacking buffers back into per-polarity
// masks. Key types: Geometry, Codec, Masks.
//
// Wire format (matches the FPGA output): 4 pixels per byte, MSB first,
// row-major pixel order. Pixel values: 00 = no event, 01 = positive,
// 10 = negative, 11 = reserved (decoded as no event, counted separately).
package evcodec
