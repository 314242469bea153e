// Package tracking propagates a user-drawn bounding box across the frames of
// a video.
//
// A Manager watches one video's records in an annotation.Store and keeps the
// derived track structure (tracks.Set) consistent with them. Drawing a box
// creates a track and arms a Session on it; Start then drives the Session
// frame by frame, one seek at a time, writing a box for every frame in which
// the target was found. Runs of successful frames extend the active temporal
// segment; a success after a gap opens a new segment.
//
// A Manager is not safe for concurrent use. Every method, every store
// mutation for the managed video and every seek completion must happen on
// one goroutine.
package tracking
