// Package logging provides the leveled, printf-style logging helpers used
// throughout the HelpMeOut service. Output goes through a zap sugared logger.
//
// Levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The level comes from LOG_LEVEL (or DEBUG=true). LOG_FORMAT=json selects
// the production JSON encoder; anything else uses the console encoder.
package logging
