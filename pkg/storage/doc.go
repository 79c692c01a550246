// Package storage renders and persists export artifacts.
//
// Rendering and naming are pure functions so callers can compose them with
// any sink. RenderRows serializes timeline rows as pretty JSON or as CSV
// with a stable column order, and FileName expands a name pattern like
// "{username}_tweets_{date}.{format}" for a given user and day.
//
// Manager is the filesystem sink. It accepts a filename, a rendered payload
// and its MIME type, and writes the artifact atomically beneath a base
// directory:
//
//	data, mime, err := storage.RenderRows(rows, "json")
//	if err != nil {
//		return err
//	}
//	name := storage.FileName(pattern, "kepler", "json", time.Now())
//	manager, err := storage.NewManager("./exports")
//	if err != nil {
//		return err
//	}
//	path, err := manager.Write(name, data, mime)
//
// CSV column order is part of the artifact contract. Spreadsheet imports
// and downstream scripts key off the header, so new columns are only ever
// appended.
package storage
