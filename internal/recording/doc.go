// Package recording stores uploaded recording chunks and reassembles them.
//
// Each chunk is written as {index}.mp4 under {root}/{videoID}/. The
// directory is keyed by the video id alone, so renaming the owner or
// transferring the video leaves it in place. When the last chunk arrives the chunks are
// concatenated in numeric index order into {videoID}.mp4 in the same
// directory. Derived artifacts (compressed video, thumbnail, audio,
// transcripts) are placed alongside it, so deleting a video is a single
// directory removal.
package recording
