// Package envtext parses and formats ".env" style text.
//
// The dialect is the one commonly pasted into environment editors:
//
//	# database settings
//	export DB_HOST=localhost
//	DB_USER = admin           # trailing comment
//	GREETING="hello # world"  # quoted text may contain '#'
//	PATH_SEP=a\=b             # backslash escapes the next character
//
// [Parse] never fails. Lines that are blank, start with '#', or contain no
// '=' that isn't preceded by a backslash are skipped. The key is the trimmed
// text before that '=' and is taken as-is; escapes have no meaning in keys.
// The value is scanned character by character, honoring single and double
// quotes and backslash escapes, and stops at an unquoted '#'. Unterminated
// quotes and dangling backslashes are tolerated.
//
// Results are returned as a [Map], which remembers insertion order. Reassigning
// a key keeps its original position. [Merge] combines two maps with a [Mode],
// and [Format] writes a map back out as text that [Parse] reads back
// unchanged.
package envtext
