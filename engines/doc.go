// Package engines lists the engine builds an application can choose from
// and fits user settings to the chosen build.
//
// Registry entries are ordered by preference; Default picks the first one
// supporting the requested variant. Settings.Clamp keeps thread count,
// hash size, line count and search time within what the engine and the
// settings view allow.
package engines
