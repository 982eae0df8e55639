// Package transcript turns recorded audio into text using the Deepgram
// pre-recorded transcription API and renders the result as JSON or SRT
// captions.
package transcript
