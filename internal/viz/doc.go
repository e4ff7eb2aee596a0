// Package viz owns the real-time visualization engine for decoded
// event frames.
//
// Responsibilities: per-pixel temporal state (time surfaces, decaying
// heatmap), a monotonic logical tick, and rendering that state in four
// analysis modes (standard, time surface, heatmap, split polarity).
// Throughput statistics are forwarded to a stats.Aggregator.
//
// The engine is owned by a single session loop. Mode switches take
// effect on the next Render call; they never tear state mid-frame.
package viz
