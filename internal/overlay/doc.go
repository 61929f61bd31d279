// Package overlay merges the user's managed fields into a downloaded daemon
// configuration document.
//
// Rules:
//   - Fields set in the settings file replace the document's values.
//   - Optional fields left unset in the settings file are removed from the
//     document.
//   - Every other top-level key is kept as is, in its original order,
//     including nested proxy lists, proxy groups and rules.
package overlay
