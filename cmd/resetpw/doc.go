// Command resetpw provides account maintenance for a HelpMeOut database.
//
// Usage:
//
//	resetpw <command> [args]
//
// Commands:
//
//	reset <username>  Prompt for a new password and set it. All existing
//	                  sessions of the user are invalidated.
//
//	status            Print user, active session and per-status video
//	                  counts.
//
//	purge <username>  Permanently remove a user, their sessions, their
//	                  videos and the files behind them. Soft-deleted
//	                  accounts can be purged, which frees the username.
//
// Environment:
//
//	DATABASE_DIR - Path to database directory (default: /database)
//	MEDIA_DIR    - Path to media directory (default: /media)
//
// Both can be overridden with --database-dir and --media-dir.
package main
