// Package transcoder wraps the ffmpeg and ffprobe command-line tools used to
// post-process recordings.
//
// It supports:
//   - probing the duration of a recording
//   - checking that a merged recording is decodable
//   - H.264 compression
//   - single-frame thumbnail capture, resized in-process with imaging
//   - low-bitrate MP3 extraction for transcription
//
// Every subprocess is tracked so that Cleanup can kill in-flight work at
// shutdown. The binaries default to "ffmpeg" and "ffprobe" on PATH.
package transcoder
