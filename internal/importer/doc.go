// Package importer detects, parses and canonicalizes listening-history exports.
//
// Each supported platform is a [Pipeline] selected once with [For]. A pipeline
// streams [models.RawRecord] values out of the uploaded files, resolves missing
// artists through a [catalog.Resolver] when the export omits them, and maps the
// survivors to canonical [models.Play] values.
//
// Detection inspects archive entry names, JSON keys and CSV headers. File
// extensions are never trusted on their own. Failures are returned as [*Error]
// carrying an [models.ImportStatus] and guidance text for the user.
package importer
